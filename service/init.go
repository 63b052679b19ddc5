/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、规则集引导与各业务服务装配
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 应用启动时执行初始化流程：数据库 -> 迁移 -> 规则集引导 -> 服务装配
 * @rules 规则集引导失败直接终止启动；Redis与Kafka不可用时降级为单实例模式
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/correction, service/validation, service/learning, service/kpi
 */

package service

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"dataquality-service/client/connectors"
	"dataquality-service/service/cleanup"
	"dataquality-service/service/correction"
	"dataquality-service/service/detection"
	"dataquality-service/service/distributed_lock"
	"dataquality-service/service/kpi"
	"dataquality-service/service/learning"
	"dataquality-service/service/models"
	"dataquality-service/service/rate_limiter"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/suggester"
	"dataquality-service/service/validation"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                   *gorm.DB
	GlobalRuleRepository *ruleset.Repository
	GlobalEngine         *detection.Engine
	GlobalGenerator      *correction.Generator
	GlobalPipeline       *correction.Pipeline
	GlobalWorkflow       *validation.Workflow
	GlobalLearningLoop   *learning.Loop
	GlobalKPITracker     *kpi.Tracker
	GlobalPublisher      *connectors.DecisionPublisher
	GlobalRateLimiter    *rate_limiter.RedisRateLimiter
	GlobalStaleClaim     *cleanup.StaleClaimService
)

func init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "things2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整型环境变量，解析失败返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	err := DB.AutoMigrate(
		&models.RuleSetVersion{},
		&models.CorrectionDecision{},
		&models.ValidationTask{},
		&models.TrainingExample{},
		&models.ModelVersion{},
		&models.KPISnapshot{},
		&models.CorrectionAudit{},
	)
	if err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	log.Println("数据库表结构迁移完成")
}

// initServices 初始化服务
func initServices() {
	// Kafka事件发布，未配置broker时自动关闭
	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	GlobalPublisher = connectors.NewDecisionPublisher(brokers,
		getEnvWithDefault("KAFKA_TOPIC", "dataquality-decisions"), 5*time.Second)

	// 规则集仓库引导：无激活版本时落库内置规则，失败直接终止启动
	GlobalRuleRepository = ruleset.NewRepository(DB, GlobalPublisher)
	if err := GlobalRuleRepository.Bootstrap(); err != nil {
		log.Fatalf("规则集引导失败: %v", err)
	}
	log.Printf("规则集已加载: version=%d", GlobalRuleRepository.Current().Version)

	// 统计滑动窗口与检测引擎
	windows := detection.NewWindowRegistry(getEnvInt("STAT_WINDOW_SIZE", 1000))
	GlobalEngine = detection.NewEngine(GlobalRuleRepository, windows)

	// 建议模型客户端，可通过环境变量关闭模型路径
	var suggest correction.SuggestFunc
	if getEnvWithDefault("SUGGESTER_ENABLED", "true") == "true" {
		suggest = suggester.Suggest
	}
	suggestTimeout := time.Duration(getEnvInt("SUGGESTER_TIMEOUT_MS", 2000)) * time.Millisecond
	GlobalGenerator = correction.NewGenerator(windows, suggest, suggestTimeout)

	// Redis分布式锁，不可用时降级为单实例模式
	var lock distributed_lock.DistributedLock
	var executor *distributed_lock.LockExecutor
	if redisLock, err := distributed_lock.NewRedisLock(); err != nil {
		log.Printf("Redis连接失败，重训练与KPI快照退化为进程内互斥: %v", err)
	} else {
		lock = redisLock
		executor = distributed_lock.NewLockExecutor(lock)
	}

	// 学习反馈环与KPI跟踪器
	GlobalLearningLoop = learning.NewLoop(DB, lock, GlobalPublisher, nil,
		int64(getEnvInt("RETRAIN_THRESHOLD", learning.DefaultRetrainThreshold)))
	GlobalKPITracker = kpi.NewTracker(DB, executor)
	if err := GlobalKPITracker.StartSchedule(os.Getenv("KPI_SCHEDULE")); err != nil {
		log.Printf("启动KPI快照调度失败: %v", err)
	}

	// 校验工作流：完成的校验通过学习反馈环沉淀训练样本
	GlobalWorkflow = validation.NewWorkflow(DB, GlobalLearningLoop, GlobalPublisher)

	// 修正流水线：批处理耗时上报KPI跟踪器
	GlobalPipeline = correction.NewPipeline(DB, GlobalRuleRepository, GlobalEngine,
		GlobalGenerator, GlobalPublisher, GlobalKPITracker,
		getEnvInt("PIPELINE_WORKERS", correction.DefaultWorkers))

	// 批量接口限流器，Redis不可用时限流关闭
	if limiter, err := rate_limiter.NewRedisRateLimiter(); err != nil {
		log.Printf("Redis限流器初始化失败，批量接口限流关闭: %v", err)
	} else {
		GlobalRateLimiter = limiter
	}

	// 失效认领回收：长期无进展的认领任务放回待认领池
	claimTTL := time.Duration(getEnvInt("CLAIM_TTL_HOURS", 4)) * time.Hour
	GlobalStaleClaim = cleanup.NewStaleClaimService(DB, claimTTL)
	if err := GlobalStaleClaim.StartScheduledReclaim(); err != nil {
		log.Printf("启动失效认领回收失败: %v", err)
	}

	log.Println("服务初始化完成")
}
