/*
 * @module service/learning/feedback
 * @description 学习反馈环，从已完成校验沉淀训练样本并在阈值达到时单飞触发模型重训练
 * @architecture 分层架构 - 学习反馈层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 校验完成 -> 样本入库 -> 计数达阈值 -> 单飞重训练 -> 模型版本追加
 * @rules 仅 completed 校验产生样本且每个校验至多一条；重训练进程内CAS加Redis锁双重单飞；训练失败或取消不影响已激活版本
 * @dependencies gorm.io/gorm, service/distributed_lock, service/suggester, service/models
 * @refs service/validation/workflow.go, service/suggester/client.go
 */

package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dataquality-service/client/connectors"
	"dataquality-service/service/distributed_lock"
	"dataquality-service/service/models"
	"dataquality-service/service/suggester"

	"gorm.io/gorm"
)

// DefaultRetrainThreshold 默认重训练样本阈值
const DefaultRetrainThreshold = 100

// retrainLockKey 跨实例单飞锁
const retrainLockKey = "model_retrain"

// retrainLockTTL 训练锁过期时间，带续期时只作兜底
const retrainLockTTL = 30 * time.Minute

// RetrainFunc 重训练调用，生产实现为 suggester.Retrain，测试可替换
type RetrainFunc func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error)

// Loop 学习反馈环
type Loop struct {
	db        *gorm.DB
	lock      distributed_lock.DistributedLock
	publisher *connectors.DecisionPublisher
	retrain   RetrainFunc
	threshold int64

	running    atomic.Bool
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
}

// NewLoop 创建学习反馈环
// lock 与 publisher 允许为 nil；retrain 为 nil 时使用 suggester.Retrain
func NewLoop(db *gorm.DB, lock distributed_lock.DistributedLock, publisher *connectors.DecisionPublisher, retrain RetrainFunc, threshold int64) *Loop {
	if retrain == nil {
		retrain = suggester.Retrain
	}
	if threshold <= 0 {
		threshold = DefaultRetrainThreshold
	}
	return &Loop{
		db:        db,
		lock:      lock,
		publisher: publisher,
		retrain:   retrain,
		threshold: threshold,
	}
}

// RecordOutcome 从已完成校验沉淀训练样本
// origin_validation_id 唯一索引保证重复提交幂等；计数达阈值时异步触发重训练
func (l *Loop) RecordOutcome(ctx context.Context, task *models.ValidationTask, action string) error {
	if task.Status != models.TaskStatusCompleted {
		return fmt.Errorf("仅已完成的校验可沉淀样本，当前状态: %s", task.Status)
	}

	example := &models.TrainingExample{
		OriginValidationID: task.ID,
		DatasetID:          task.DatasetID,
		Field:              task.Field,
		InputContext: models.JSONB{
			"field":     task.Field,
			"kind":      task.Kind,
			"old_value": models.UnwrapValue(task.OldValue),
			"proposed":  models.UnwrapValue(task.ProposedValue),
			"action":    action,
		},
		TargetValue: task.FinalValue,
	}

	if err := l.db.WithContext(ctx).Create(example).Error; err != nil {
		if isDuplicateKey(err) {
			slog.Warn("校验样本已存在，跳过重复沉淀", "validation_id", task.ID)
			return nil
		}
		return models.NewPipelineError(models.ErrCodePersistence, "训练样本写入失败", err)
	}

	pending, err := l.PendingExamples()
	if err != nil {
		return err
	}
	if pending >= l.threshold {
		go func() {
			if err := l.Retrain(context.Background()); err != nil {
				if models.ErrorCode(err) != models.ErrCodeRetrainInProgress {
					slog.Error("自动触发重训练失败", "error", err)
				}
			}
		}()
	}
	return nil
}

// PendingExamples 自上次有效训练以来累计的样本数
// 失败或取消的训练不消费样本，计数继续累积
func (l *Loop) PendingExamples() (int64, error) {
	var last models.ModelVersion
	err := l.db.Where("status IN ?", []string{"active", "training"}).
		Order("started_at DESC").First(&last).Error

	query := l.db.Model(&models.TrainingExample{})
	switch {
	case err == nil:
		query = query.Where("recorded_at > ?", last.StartedAt)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 从未训练过，全量计数
	default:
		return 0, models.NewPipelineError(models.ErrCodePersistence, "查询模型版本失败", err)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, models.NewPipelineError(models.ErrCodePersistence, "统计训练样本失败", err)
	}
	return count, nil
}

// Retrain 执行一轮重训练，同步返回
// 进程内 atomic CAS 加 Redis 锁双重单飞，并发触发返回 RETRAIN_IN_PROGRESS
func (l *Loop) Retrain(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return models.NewPipelineError(models.ErrCodeRetrainInProgress, "重训练正在进行中", nil)
	}
	defer l.running.Store(false)

	if l.lock != nil {
		locked, err := l.lock.TryLock(ctx, retrainLockKey, retrainLockTTL)
		if err != nil {
			return models.NewPipelineError(models.ErrCodePersistence, "获取训练锁失败", err)
		}
		if !locked {
			return models.NewPipelineError(models.ErrCodeRetrainInProgress, "其他实例正在重训练", nil)
		}
		defer func() {
			if err := l.lock.Unlock(context.Background(), retrainLockKey); err != nil {
				slog.Error("释放训练锁失败", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	l.setCancel(cancel)
	defer l.setCancel(nil)

	return l.runRetrain(ctx)
}

// CancelRetrain 取消进行中的重训练，已激活的模型版本不受影响
func (l *Loop) CancelRetrain() bool {
	l.cancelMu.Lock()
	defer l.cancelMu.Unlock()
	if l.cancelFunc == nil {
		return false
	}
	l.cancelFunc()
	return true
}

func (l *Loop) setCancel(cancel context.CancelFunc) {
	l.cancelMu.Lock()
	defer l.cancelMu.Unlock()
	l.cancelFunc = cancel
}

// runRetrain 训练主体：登记training版本 -> 提交样本 -> 按结果落终态
func (l *Loop) runRetrain(ctx context.Context) error {
	var examples []models.TrainingExample
	if err := l.db.Order("recorded_at ASC").Find(&examples).Error; err != nil {
		return models.NewPipelineError(models.ErrCodePersistence, "读取训练样本失败", err)
	}
	if len(examples) == 0 {
		return fmt.Errorf("没有可用的训练样本")
	}

	var maxVersion int
	row := l.db.Model(&models.ModelVersion{}).Select("COALESCE(MAX(version), 0)").Row()
	if err := row.Scan(&maxVersion); err != nil {
		return models.NewPipelineError(models.ErrCodePersistence, "查询模型版本号失败", err)
	}

	record := &models.ModelVersion{
		Version:      maxVersion + 1,
		ExampleCount: int64(len(examples)),
		Status:       "training",
		StartedAt:    time.Now(),
	}
	if err := l.db.Create(record).Error; err != nil {
		return models.NewPipelineError(models.ErrCodePersistence, "登记模型版本失败", err)
	}

	if l.publisher != nil {
		l.publisher.Publish(ctx, &connectors.DecisionEvent{
			Type:    connectors.EventRetrainTriggered,
			Payload: map[string]interface{}{"version": record.Version, "examples": record.ExampleCount},
		})
	}
	slog.Info("模型重训练开始", "version", record.Version, "examples", record.ExampleCount)

	payloads := make([]suggester.TrainingPayload, 0, len(examples))
	for _, example := range examples {
		payloads = append(payloads, suggester.TrainingPayload{
			Field:        example.Field,
			InputContext: example.InputContext,
			TargetValue:  models.UnwrapValue(example.TargetValue),
		})
	}

	result, err := l.retrain(ctx, payloads)
	now := time.Now()
	if err != nil {
		status := "failed"
		if errors.Is(err, context.Canceled) {
			status = "cancelled"
		}
		l.db.Model(record).Updates(map[string]interface{}{
			"status":       status,
			"completed_at": now,
		})
		slog.Error("模型重训练未完成", "version", record.Version, "status", status, "error", err)
		return fmt.Errorf("重训练未完成: %w", err)
	}

	if err := l.db.Model(record).Updates(map[string]interface{}{
		"status":           "active",
		"holdout_accuracy": result.HoldoutAccuracy,
		"completed_at":     now,
	}).Error; err != nil {
		return models.NewPipelineError(models.ErrCodePersistence, "更新模型版本失败", err)
	}

	// 旧的激活版本退役
	l.db.Model(&models.ModelVersion{}).
		Where("status = ? AND version < ?", "active", record.Version).
		Update("status", "retired")

	slog.Info("模型重训练完成", "version", record.Version, "holdout_accuracy", result.HoldoutAccuracy)
	return nil
}

// TrendPoint 精度趋势点
type TrendPoint struct {
	Version         int        `json:"version"`
	ExampleCount    int64      `json:"example_count"`
	HoldoutAccuracy float64    `json:"holdout_accuracy"`
	AccuracyDelta   float64    `json:"accuracy_delta"` // 相对上一有效版本
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// AccuracyTrend 最近 window 个成功训练版本的留出集精度趋势
func (l *Loop) AccuracyTrend(window int) ([]TrendPoint, error) {
	if window <= 0 {
		window = 10
	}

	var versions []models.ModelVersion
	err := l.db.Where("status IN ?", []string{"active", "retired"}).
		Order("version DESC").Limit(window).Find(&versions).Error
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "查询模型版本失败", err)
	}

	// 倒序取出后翻转为时间正序
	points := make([]TrendPoint, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		point := TrendPoint{
			Version:         v.Version,
			ExampleCount:    v.ExampleCount,
			HoldoutAccuracy: v.HoldoutAccuracy,
			CompletedAt:     v.CompletedAt,
		}
		if len(points) > 0 {
			point.AccuracyDelta = v.HoldoutAccuracy - points[len(points)-1].HoldoutAccuracy
		}
		points = append(points, point)
	}
	return points, nil
}

// isDuplicateKey 唯一约束冲突判定，兼容postgres与sqlite的报错文案
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
