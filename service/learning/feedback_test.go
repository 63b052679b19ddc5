/*
 * @module service/learning/feedback_test
 * @description 学习反馈环测试，覆盖样本沉淀幂等、阈值计数、单飞重训练与取消
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 内存数据库 -> 样本沉淀/重训练 -> 版本与计数验证
 * @rules 重训练用桩函数替代真实HTTP调用
 * @dependencies testing, testutil, github.com/stretchr/testify
 * @refs feedback.go
 */

package learning

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dataquality-service/service/models"
	"dataquality-service/service/suggester"
	"dataquality-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedTask(id string) *models.ValidationTask {
	return &models.ValidationTask{
		ID:            id,
		DecisionID:    "cd_" + id,
		DatasetID:     "ds_test",
		Field:         "email",
		Kind:          models.KindFormat,
		Status:        models.TaskStatusCompleted,
		OldValue:      models.WrapValue("alice@example,com"),
		ProposedValue: models.WrapValue("alice@example.com"),
		FinalValue:    models.WrapValue("alice@example.com"),
	}
}

func TestRecordOutcomeIdempotent(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		return &suggester.RetrainResult{}, nil
	}, 1000)

	task := completedTask("vt1")
	require.NoError(t, loop.RecordOutcome(context.Background(), task, models.SubmitAccept))
	// 重复提交幂等，不报错不重复入库
	require.NoError(t, loop.RecordOutcome(context.Background(), task, models.SubmitAccept))

	var count int64
	db.DB.Model(&models.TrainingExample{}).Count(&count)
	assert.EqualValues(t, 1, count)

	var example models.TrainingExample
	require.NoError(t, db.DB.First(&example).Error)
	assert.Equal(t, "vt1", example.OriginValidationID)
	assert.Equal(t, "alice@example.com", models.UnwrapValue(example.TargetValue))
}

func TestRecordOutcomeRejectsNonCompleted(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		return &suggester.RetrainResult{}, nil
	}, 1000)

	task := completedTask("vt1")
	task.Status = models.TaskStatusRejected
	assert.Error(t, loop.RecordOutcome(context.Background(), task, models.SubmitReject))
}

func TestRetrainSuccess(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)

	var trained atomic.Int32
	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		trained.Add(1)
		return &suggester.RetrainResult{HoldoutAccuracy: 0.88}, nil
	}, 5)

	for i := 0; i < 5; i++ {
		factory.CreateTrainingExample()
	}

	require.NoError(t, loop.Retrain(context.Background()))
	assert.EqualValues(t, 1, trained.Load())

	var version models.ModelVersion
	require.NoError(t, db.DB.Order("version DESC").First(&version).Error)
	assert.Equal(t, 1, version.Version)
	assert.Equal(t, "active", version.Status)
	assert.InDelta(t, 0.88, version.HoldoutAccuracy, 1e-9)
	assert.EqualValues(t, 5, version.ExampleCount)
	assert.NotNil(t, version.CompletedAt)
}

func TestRetrainSingleFlight(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)
	factory.CreateTrainingExample()

	started := make(chan struct{})
	release := make(chan struct{})
	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		close(started)
		<-release
		return &suggester.RetrainResult{HoldoutAccuracy: 0.8}, nil
	}, 5)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, loop.Retrain(context.Background()))
	}()
	<-started

	// 训练进行中，并发触发返回 RETRAIN_IN_PROGRESS
	err := loop.Retrain(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeRetrainInProgress, models.ErrorCode(err))

	close(release)
	wg.Wait()

	var count int64
	db.DB.Model(&models.ModelVersion{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRetrainCancelKeepsActiveVersion(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)
	factory.CreateTrainingExample()
	factory.CreateModelVersion(1)

	started := make(chan struct{})
	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, 5)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.Error(t, loop.Retrain(context.Background()))
	}()
	<-started
	require.True(t, loop.CancelRetrain())
	wg.Wait()

	var cancelled models.ModelVersion
	require.NoError(t, db.DB.Where("status = ?", "cancelled").First(&cancelled).Error)
	assert.Equal(t, 2, cancelled.Version)

	// 之前的激活版本不受影响
	var active models.ModelVersion
	require.NoError(t, db.DB.Where("status = ?", "active").First(&active).Error)
	assert.Equal(t, 1, active.Version)
}

func TestPendingExamplesCounter(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)

	loop := NewLoop(db.DB, nil, nil, func(ctx context.Context, examples []suggester.TrainingPayload) (*suggester.RetrainResult, error) {
		return &suggester.RetrainResult{HoldoutAccuracy: 0.8}, nil
	}, 100)

	for i := 0; i < 3; i++ {
		factory.CreateTrainingExample()
	}
	pending, err := loop.PendingExamples()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pending)

	// 训练启动时间之后的样本才计入下一轮
	started := time.Now()
	factory.CreateModelVersion(1, func(v *models.ModelVersion) {
		v.StartedAt = started
	})

	factory.CreateTrainingExample(func(e *models.TrainingExample) {
		e.RecordedAt = started.Add(time.Second)
	})
	pending, err = loop.PendingExamples()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestAccuracyTrend(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)

	factory.CreateModelVersion(1, func(v *models.ModelVersion) {
		v.Status = "retired"
		v.HoldoutAccuracy = 0.80
	})
	factory.CreateModelVersion(2, func(v *models.ModelVersion) {
		v.Status = "retired"
		v.HoldoutAccuracy = 0.86
	})
	factory.CreateModelVersion(3, func(v *models.ModelVersion) {
		v.HoldoutAccuracy = 0.84
	})
	// 失败版本不进入趋势
	factory.CreateModelVersion(4, func(v *models.ModelVersion) {
		v.Status = "failed"
	})

	points, err := NewLoop(db.DB, nil, nil, nil, 0).AccuracyTrend(10)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 1, points[0].Version)
	assert.InDelta(t, 0.06, points[1].AccuracyDelta, 1e-9)
	assert.InDelta(t, -0.02, points[2].AccuracyDelta, 1e-9)
}
