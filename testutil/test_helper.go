/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试数据库、数据工厂和HTTP断言工具
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"dataquality-service/service/models"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.RuleSetVersion{},
		&models.CorrectionDecision{},
		&models.ValidationTask{},
		&models.TrainingExample{},
		&models.ModelVersion{},
		&models.KPISnapshot{},
		&models.CorrectionAudit{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"rule_set_versions",
		"correction_decisions",
		"validation_tasks",
		"training_examples",
		"model_versions",
		"kpi_snapshots",
		"correction_audits",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// DecisionOption 修正决策选项函数类型
type DecisionOption func(*models.CorrectionDecision)

// CreateDecision 创建测试修正决策
func (f *TestDataFactory) CreateDecision(opts ...DecisionOption) *models.CorrectionDecision {
	decision := &models.CorrectionDecision{
		ID:             generateID("cd"),
		DatasetID:      "ds_test",
		Field:          "email",
		Kind:           models.KindFormat,
		OldValue:       models.WrapValue("alice@example,com"),
		NewValue:       models.WrapValue("alice@example.com"),
		Confidence:     0.92,
		AutoApplied:    true,
		Source:         models.SourceRule,
		RuleSetVersion: 1,
		CreatedAt:      time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(decision)
	}

	err := f.DB.Create(decision).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test decision: %v", err))
	}

	return decision
}

// ValidationTaskOption 校验任务选项函数类型
type ValidationTaskOption func(*models.ValidationTask)

// CreateValidationTask 创建测试校验任务
func (f *TestDataFactory) CreateValidationTask(opts ...ValidationTaskOption) *models.ValidationTask {
	now := time.Now()
	task := &models.ValidationTask{
		ID:            generateID("vt"),
		DecisionID:    generateID("cd"),
		DatasetID:     "ds_test",
		Field:         "age",
		Kind:          models.KindDomain,
		Status:        models.TaskStatusPending,
		Priority:      0,
		OldValue:      models.WrapValue(250),
		ProposedValue: models.WrapValue(120),
		Confidence:    0.75,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 应用选项
	for _, opt := range opts {
		opt(task)
	}

	err := f.DB.Create(task).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test validation task: %v", err))
	}

	return task
}

// TrainingExampleOption 训练样本选项函数类型
type TrainingExampleOption func(*models.TrainingExample)

// CreateTrainingExample 创建测试训练样本
func (f *TestDataFactory) CreateTrainingExample(opts ...TrainingExampleOption) *models.TrainingExample {
	example := &models.TrainingExample{
		ID:                 generateID("te"),
		OriginValidationID: generateID("vt"),
		DatasetID:          "ds_test",
		Field:              "email",
		InputContext: models.JSONB{
			"field": "email",
			"value": "alice@example,com",
		},
		TargetValue: models.WrapValue("alice@example.com"),
		RecordedAt:  time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(example)
	}

	err := f.DB.Create(example).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test training example: %v", err))
	}

	return example
}

// ModelVersionOption 模型版本选项函数类型
type ModelVersionOption func(*models.ModelVersion)

// CreateModelVersion 创建测试模型版本
func (f *TestDataFactory) CreateModelVersion(version int, opts ...ModelVersionOption) *models.ModelVersion {
	now := time.Now()
	mv := &models.ModelVersion{
		ID:              generateID("mv"),
		Version:         version,
		ExampleCount:    int64(version * 100),
		HoldoutAccuracy: 0.85,
		Status:          "active",
		StartedAt:       now,
		CompletedAt:     &now,
		CreatedAt:       now,
	}

	// 应用选项
	for _, opt := range opts {
		opt(mv)
	}

	err := f.DB.Create(mv).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test model version: %v", err))
	}

	return mv
}

// AuditOption 抽样审计选项函数类型
type AuditOption func(*models.CorrectionAudit)

// CreateAudit 创建测试抽样审计记录
func (f *TestDataFactory) CreateAudit(decisionID string, opts ...AuditOption) *models.CorrectionAudit {
	audit := &models.CorrectionAudit{
		ID:         generateID("ca"),
		DecisionID: decisionID,
		DatasetID:  "ds_test",
		Verdict:    "pending",
		CreatedAt:  time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(audit)
	}

	err := f.DB.Create(audit).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test audit: %v", err))
	}

	return audit
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
