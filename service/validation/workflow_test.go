/*
 * @module service/validation/workflow_test
 * @description 校验任务工作流测试，覆盖状态机全部迁移与并发认领冲突
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 内存数据库 -> 状态迁移操作 -> 状态与错误码验证
 * @rules 非法迁移必须返回 INVALID_TRANSITION；认领竞争失败返回 VALIDATION_CONFLICT
 * @dependencies testing, testutil, github.com/stretchr/testify
 * @refs workflow.go
 */

package validation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dataquality-service/service/models"
	"dataquality-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedOutcome 记录沉淀调用的桩实现
type recordedOutcome struct {
	mu    sync.Mutex
	tasks []*models.ValidationTask
}

func (r *recordedOutcome) RecordOutcome(ctx context.Context, task *models.ValidationTask, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func newWorkflowFixture(t *testing.T) (*Workflow, *testutil.TestDataFactory, *recordedOutcome) {
	t.Helper()
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	recorder := &recordedOutcome{}
	return NewWorkflow(db.DB, recorder, nil), testutil.NewTestDataFactory(db.DB), recorder
}

func TestClaimAndStart(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	claimed, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, claimed.Status)
	assert.Equal(t, "alice", claimed.AssignedTo)

	started, err := workflow.Start(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, started.Status)
}

func TestClaimConflict(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	_, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)

	_, err = workflow.Claim(context.Background(), task.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidationConflict, models.ErrorCode(err))

	// 同一认领人重复认领幂等
	again, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAssigned, again.Status)
}

func TestStartRequiresClaimant(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	// 未认领不能开始
	_, err := workflow.Start(context.Background(), task.ID, "alice")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidTransition, models.ErrorCode(err))

	_, err = workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)

	// 非认领人不能开始
	_, err = workflow.Start(context.Background(), task.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidationConflict, models.ErrorCode(err))
}

func TestSubmitAccept(t *testing.T) {
	workflow, factory, recorder := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	_, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	_, err = workflow.Start(context.Background(), task.ID, "alice")
	require.NoError(t, err)

	done, err := workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	assert.EqualValues(t, 120, models.UnwrapValue(done.FinalValue))
	assert.NotNil(t, done.ResolvedAt)
	assert.NotNil(t, done.ArchivedAt)

	// 完成的校验恰好沉淀一条样本
	require.Len(t, recorder.tasks, 1)
	assert.Equal(t, task.ID, recorder.tasks[0].ID)
}

func TestSubmitModify(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	_, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	_, err = workflow.Start(context.Background(), task.ID, "alice")
	require.NoError(t, err)

	done, err := workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitModify, FinalValue: 118,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	assert.EqualValues(t, 118, models.UnwrapValue(done.FinalValue))
}

func TestSubmitRejectFromAnyNonTerminal(t *testing.T) {
	workflow, factory, recorder := newWorkflowFixture(t)

	// pending 直接拒绝
	task := factory.CreateValidationTask()
	done, err := workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitReject,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRejected, done.Status)
	// 拒绝保留原值
	assert.EqualValues(t, 250, models.UnwrapValue(done.FinalValue))

	// assigned 拒绝
	task2 := factory.CreateValidationTask()
	_, err = workflow.Claim(context.Background(), task2.ID, "alice")
	require.NoError(t, err)
	done2, err := workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task2.ID, Validator: "alice", Action: models.SubmitReject,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRejected, done2.Status)

	// 拒绝不沉淀训练样本
	assert.Empty(t, recorder.tasks)
}

func TestSubmitTerminalIsInvalid(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	_, err := workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitReject,
	})
	require.NoError(t, err)

	// 终态任务不可再迁移
	_, err = workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitAccept,
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidTransition, models.ErrorCode(err))

	_, err = workflow.Claim(context.Background(), task.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidationConflict, models.ErrorCode(err))
}

func TestSubmitAcceptRequiresInProgress(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)
	task := factory.CreateValidationTask()

	_, err := workflow.Claim(context.Background(), task.ID, "alice")
	require.NoError(t, err)

	// assigned 状态不允许直接 accept
	_, err = workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: task.ID, Validator: "alice", Action: models.SubmitAccept,
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidTransition, models.ErrorCode(err))
}

// flakyRecorder 前 failures 次调用失败的沉淀桩实现
type flakyRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRecorder) RecordOutcome(ctx context.Context, task *models.ValidationTask, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return errors.New("样本库暂不可用")
	}
	return nil
}

func completeTask(t *testing.T, workflow *Workflow, taskID string) (*models.ValidationTask, error) {
	t.Helper()
	_, err := workflow.Claim(context.Background(), taskID, "alice")
	require.NoError(t, err)
	_, err = workflow.Start(context.Background(), taskID, "alice")
	require.NoError(t, err)
	return workflow.Submit(context.Background(), &SubmitRequest{
		TaskID: taskID, Validator: "alice", Action: models.SubmitAccept,
	})
}

func TestSubmitRetriesOutcomeRecording(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	recorder := &flakyRecorder{failures: 2}
	workflow := NewWorkflow(db.DB, recorder, nil)
	task := testutil.NewTestDataFactory(db.DB).CreateValidationTask()

	// 前两次沉淀失败，第三次成功，提交整体成功
	done, err := completeTask(t, workflow, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	assert.Equal(t, 3, recorder.calls)
}

func TestSubmitSurfacesRecorderExhaustion(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	recorder := &flakyRecorder{failures: 10}
	workflow := NewWorkflow(db.DB, recorder, nil)
	task := testutil.NewTestDataFactory(db.DB).CreateValidationTask()

	_, err := completeTask(t, workflow, task.ID)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodePersistence, models.ErrorCode(err))
	assert.Equal(t, 3, recorder.calls)

	// 任务本身保持完成态，后续补偿可依据唯一索引安全重放
	saved, err := workflow.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, saved.Status)
}

func TestListFilterAndOrder(t *testing.T) {
	workflow, factory, _ := newWorkflowFixture(t)

	factory.CreateValidationTask(func(t *models.ValidationTask) { t.Priority = 0 })
	urgent := factory.CreateValidationTask(func(t *models.ValidationTask) { t.Priority = 20 })
	factory.CreateValidationTask(func(t *models.ValidationTask) {
		t.DatasetID = "ds_other"
		t.Priority = 10
	})

	tasks, total, err := workflow.List(&ListFilter{Status: models.TaskStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	// 优先级高的排前
	assert.Equal(t, urgent.ID, tasks[0].ID)

	tasks, total, err = workflow.List(&ListFilter{DatasetID: "ds_other"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, tasks, 1)
}
