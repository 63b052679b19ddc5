/*
 * @module service/validation/workflow
 * @description 人工校验任务工作流，管理认领、开始、提交的状态机与乐观并发控制
 * @architecture 分层架构 - 业务逻辑层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow pending -> assigned -> in_progress -> completed；rejected 可从任意非终态进入
 * @rules 认领用条件更新保证原子性，失败返回 VALIDATION_CONFLICT；终态任务归档不删除；每次完成恰好沉淀一条训练样本
 * @dependencies gorm.io/gorm, client/connectors, service/models
 * @refs service/correction/pipeline.go, service/learning/feedback.go
 */

package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dataquality-service/client/connectors"
	"dataquality-service/service/models"

	"gorm.io/gorm"
)

// OutcomeRecorder 校验结论沉淀接口，学习反馈环是生产实现
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, task *models.ValidationTask, action string) error
}

// Workflow 校验任务工作流
type Workflow struct {
	db        *gorm.DB
	recorder  OutcomeRecorder
	publisher *connectors.DecisionPublisher
}

// NewWorkflow 创建校验工作流
// recorder 与 publisher 允许为 nil，对应能力关闭
func NewWorkflow(db *gorm.DB, recorder OutcomeRecorder, publisher *connectors.DecisionPublisher) *Workflow {
	return &Workflow{db: db, recorder: recorder, publisher: publisher}
}

// Claim 认领任务
// 条件更新实现CAS：仅 pending 状态可被认领，竞争失败返回 VALIDATION_CONFLICT
func (w *Workflow) Claim(ctx context.Context, taskID, validator string) (*models.ValidationTask, error) {
	if validator == "" {
		return nil, fmt.Errorf("认领人不能为空")
	}

	task, err := w.Get(taskID)
	if err != nil {
		return nil, err
	}

	// 同一认领人重复认领幂等返回
	if task.Status == models.TaskStatusAssigned && task.AssignedTo == validator {
		return task, nil
	}

	result := w.db.WithContext(ctx).Model(&models.ValidationTask{}).
		Where("id = ? AND status = ?", taskID, models.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":      models.TaskStatusAssigned,
			"assigned_to": validator,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "认领任务失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.NewPipelineError(models.ErrCodeValidationConflict,
			fmt.Sprintf("任务 %s 已被认领或不处于待认领状态", taskID), nil)
	}

	slog.Info("校验任务已认领", "task_id", taskID, "validator", validator)
	return w.Get(taskID)
}

// Start 开始处理任务，仅认领人可将 assigned 推进到 in_progress
func (w *Workflow) Start(ctx context.Context, taskID, validator string) (*models.ValidationTask, error) {
	task, err := w.Get(taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != models.TaskStatusAssigned {
		return nil, models.NewPipelineError(models.ErrCodeInvalidTransition,
			fmt.Sprintf("任务状态 %s 不允许开始处理", task.Status), nil)
	}
	if task.AssignedTo != validator {
		return nil, models.NewPipelineError(models.ErrCodeValidationConflict,
			fmt.Sprintf("任务已由 %s 认领", task.AssignedTo), nil)
	}

	result := w.db.WithContext(ctx).Model(&models.ValidationTask{}).
		Where("id = ? AND status = ? AND assigned_to = ?", taskID, models.TaskStatusAssigned, validator).
		Updates(map[string]interface{}{
			"status":     models.TaskStatusInProgress,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "更新任务状态失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.NewPipelineError(models.ErrCodeValidationConflict, "任务状态已被并发修改", nil)
	}

	return w.Get(taskID)
}

// SubmitRequest 校验提交参数
type SubmitRequest struct {
	TaskID    string      `json:"task_id"`
	Validator string      `json:"validator"`
	Action    string      `json:"action"`                // accept/reject/modify
	FinalValue interface{} `json:"final_value,omitempty"` // modify 时必填
}

// Submit 提交校验结论
// accept/modify 进入 completed 并写入最终值；reject 可从任意非终态进入 rejected
func (w *Workflow) Submit(ctx context.Context, req *SubmitRequest) (*models.ValidationTask, error) {
	task, err := w.Get(req.TaskID)
	if err != nil {
		return nil, err
	}

	if task.IsTerminal() {
		return nil, models.NewPipelineError(models.ErrCodeInvalidTransition,
			fmt.Sprintf("任务已处于终态 %s", task.Status), nil)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"updated_at":  now,
		"resolved_at": now,
		"archived_at": now,
	}

	switch req.Action {
	case models.SubmitAccept:
		if err := w.requireInProgress(task, req.Validator); err != nil {
			return nil, err
		}
		updates["status"] = models.TaskStatusCompleted
		updates["final_value"] = task.ProposedValue

	case models.SubmitModify:
		if err := w.requireInProgress(task, req.Validator); err != nil {
			return nil, err
		}
		updates["status"] = models.TaskStatusCompleted
		updates["final_value"] = models.WrapValue(req.FinalValue)

	case models.SubmitReject:
		// 拒绝保留原值
		updates["status"] = models.TaskStatusRejected
		updates["final_value"] = task.OldValue

	default:
		return nil, fmt.Errorf("未知的提交动作: %s", req.Action)
	}

	result := w.db.WithContext(ctx).Model(&models.ValidationTask{}).
		Where("id = ? AND status = ?", task.ID, task.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "提交校验结论失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, models.NewPipelineError(models.ErrCodeValidationConflict, "任务状态已被并发修改", nil)
	}

	task, err = w.Get(task.ID)
	if err != nil {
		return nil, err
	}
	slog.Info("校验结论已提交", "task_id", task.ID, "action", req.Action, "status", task.Status)

	if w.publisher != nil {
		w.publisher.Publish(ctx, &connectors.DecisionEvent{
			Type:       connectors.EventValidationClosed,
			DatasetID:  task.DatasetID,
			DecisionID: task.DecisionID,
			Payload: map[string]interface{}{
				"task_id": task.ID,
				"status":  task.Status,
				"action":  req.Action,
			},
		})
	}

	// 完成的校验沉淀训练样本，拒绝不产生样本
	// 沉淀失败带退避重试，耗尽后上抛；任务已完成的状态不回滚
	if w.recorder != nil && task.Status == models.TaskStatusCompleted {
		if err := w.recordOutcomeWithRetry(ctx, task, req.Action); err != nil {
			return nil, err
		}
	}
	return task, nil
}

const (
	outcomeRetryAttempts = 3
	outcomeRetryBackoff  = 100 * time.Millisecond
)

// recordOutcomeWithRetry 训练样本沉淀的退避重试
// origin_validation_id 唯一索引保证重试与后续补偿都不会产生重复样本
func (w *Workflow) recordOutcomeWithRetry(ctx context.Context, task *models.ValidationTask, action string) error {
	var err error
	for attempt := 1; attempt <= outcomeRetryAttempts; attempt++ {
		if err = w.recorder.RecordOutcome(ctx, task, action); err == nil {
			return nil
		}
		slog.Warn("训练样本沉淀失败", "task_id", task.ID, "attempt", attempt, "error", err)
		if attempt < outcomeRetryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(outcomeRetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return models.NewPipelineError(models.ErrCodePersistence, "训练样本沉淀重试耗尽", err)
}

// requireInProgress accept/modify 仅允许认领人在 in_progress 状态提交
func (w *Workflow) requireInProgress(task *models.ValidationTask, validator string) error {
	if task.Status != models.TaskStatusInProgress {
		return models.NewPipelineError(models.ErrCodeInvalidTransition,
			fmt.Sprintf("任务状态 %s 不允许提交结论", task.Status), nil)
	}
	if task.AssignedTo != validator {
		return models.NewPipelineError(models.ErrCodeValidationConflict,
			fmt.Sprintf("任务已由 %s 认领", task.AssignedTo), nil)
	}
	return nil
}

// Get 按ID查询任务
func (w *Workflow) Get(taskID string) (*models.ValidationTask, error) {
	var task models.ValidationTask
	if err := w.db.First(&task, "id = ?", taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("任务不存在: %s", taskID)
		}
		return nil, models.NewPipelineError(models.ErrCodePersistence, "查询任务失败", err)
	}
	return &task, nil
}

// ListFilter 任务列表过滤条件
type ListFilter struct {
	DatasetID string
	Status    string
	Validator string
	Page      int
	Size      int
}

// List 按过滤条件分页查询任务，优先级高且创建早的排前
func (w *Workflow) List(filter *ListFilter) ([]models.ValidationTask, int64, error) {
	query := w.db.Model(&models.ValidationTask{})
	if filter.DatasetID != "" {
		query = query.Where("dataset_id = ?", filter.DatasetID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Validator != "" {
		query = query.Where("assigned_to = ?", filter.Validator)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, models.NewPipelineError(models.ErrCodePersistence, "统计任务数失败", err)
	}

	page, size := filter.Page, filter.Size
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}

	var tasks []models.ValidationTask
	err := query.Order("priority DESC, created_at ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, models.NewPipelineError(models.ErrCodePersistence, "查询任务列表失败", err)
	}
	return tasks, total, nil
}
