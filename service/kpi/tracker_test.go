/*
 * @module service/kpi/tracker_test
 * @description KPI跟踪器测试，覆盖快照计算、部分快照与报表汇总
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 内存数据库造数 -> 快照计算 -> 指标断言
 * @rules 快照只追加；缺失指标必须标记而非报错
 * @dependencies testing, testutil, github.com/stretchr/testify
 * @refs tracker.go
 */

package kpi

import (
	"context"
	"testing"
	"time"

	"dataquality-service/service/models"
	"dataquality-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeSnapshot(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)
	tracker := NewTracker(db.DB, nil)

	// 10个决策，6个自动应用
	for i := 0; i < 6; i++ {
		factory.CreateDecision()
	}
	for i := 0; i < 4; i++ {
		factory.CreateDecision(func(d *models.CorrectionDecision) {
			d.AutoApplied = false
			d.Source = models.SourceModel
		})
	}

	// 抽样审计：3通过1拒绝
	for i := 0; i < 3; i++ {
		decision := factory.CreateDecision()
		factory.CreateAudit(decision.ID, func(a *models.CorrectionAudit) { a.Verdict = "accepted" })
	}
	rejected := factory.CreateDecision()
	factory.CreateAudit(rejected.ID, func(a *models.CorrectionAudit) { a.Verdict = "rejected" })

	factory.CreateModelVersion(1, func(v *models.ModelVersion) {
		v.Status = "retired"
		v.HoldoutAccuracy = 0.80
	})
	factory.CreateModelVersion(2, func(v *models.ModelVersion) {
		v.HoldoutAccuracy = 0.85
	})

	tracker.RecordBatch("ds_test", 2000, 500*time.Millisecond)

	snapshot, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)

	// 14个决策（10+审计造数的4个，均为auto除4个）
	assert.InDelta(t, 10.0/14.0, snapshot.AutoCorrectionRate, 1e-9)
	assert.InDelta(t, 0.75, snapshot.AutoCorrectionPrecision, 1e-9)
	assert.InDelta(t, 14.0/2000.0*1000, snapshot.DetectionRate, 1e-9)
	assert.InDelta(t, 250, snapshot.AvgLatencyPer1000Rows, 1e-9)
	assert.InDelta(t, 0.05, snapshot.AccuracyDelta, 1e-9)
	assert.NotContains(t, snapshot.MissingFields, "auto_correction_precision")

	var count int64
	db.DB.Model(&models.KPISnapshot{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestTakeSnapshotPartial(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)
	tracker := NewTracker(db.DB, nil)

	factory.CreateDecision()

	// 无吞吐上报、无已评审审计、模型版本不足
	snapshot, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)

	assert.Contains(t, snapshot.MissingFields, "avg_latency_per_1000_rows")
	assert.Contains(t, snapshot.MissingFields, "auto_correction_precision")
	assert.Contains(t, snapshot.MissingFields, "accuracy_delta")
	// 可计算的指标照常产出
	assert.InDelta(t, 1.0, snapshot.AutoCorrectionRate, 1e-9)
}

func TestTakeSnapshotDecisionsUnreadable(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	tracker := NewTracker(db.DB, nil)

	tracker.RecordBatch("ds1", 1000, time.Second)
	// 决策计数器不可读，其余指标照常产出
	require.NoError(t, db.DB.Migrator().DropTable(&models.CorrectionDecision{}))

	snapshot, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)

	assert.Contains(t, snapshot.MissingFields, "detection_rate")
	assert.Contains(t, snapshot.MissingFields, "auto_correction_rate")
	// 已标记缺失的指标不以零值计数填充
	assert.Zero(t, snapshot.DetectionRate)
	assert.InDelta(t, 1000, snapshot.AvgLatencyPer1000Rows, 1e-9)
	assert.NotContains(t, snapshot.MissingFields, "avg_latency_per_1000_rows")
}

func TestSnapshotAppendOnly(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	tracker := NewTracker(db.DB, nil)

	first, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)
	second, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	// 第二份快照的周期衔接第一份
	assert.WithinDuration(t, first.TakenAt, second.PeriodStart, time.Second)

	var count int64
	db.DB.Model(&models.KPISnapshot{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestThroughputResetAfterSnapshot(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	tracker := NewTracker(db.DB, nil)

	tracker.RecordBatch("ds1", 1000, time.Second)
	snapshot, err := tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)
	assert.NotContains(t, snapshot.MissingFields, "avg_latency_per_1000_rows")

	// 吞吐累计已清零，下一周期无上报则指标缺失
	snapshot, err = tracker.TakeSnapshot(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, snapshot.MissingFields, "avg_latency_per_1000_rows")
}

func TestBuildReport(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	tracker := NewTracker(db.DB, nil)

	now := time.Now()
	for i := 0; i < 3; i++ {
		snapshot := &models.KPISnapshot{
			PeriodStart:             now.Add(time.Duration(-i-1) * time.Hour),
			PeriodEnd:               now.Add(time.Duration(-i) * time.Hour),
			DetectionRate:           float64(10 + i),
			AutoCorrectionRate:      0.5,
			AutoCorrectionPrecision: 0.9,
			TakenAt:                 now.Add(time.Duration(-i) * time.Hour),
		}
		require.NoError(t, db.DB.Create(snapshot).Error)
	}

	report, err := tracker.BuildReport(10)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Snapshots)
	assert.InDelta(t, 11, report.AvgDetectionRate, 1e-9)
	assert.InDelta(t, 0.5, report.AvgAutoCorrectionRate, 1e-9)
	assert.InDelta(t, 0.9, report.AvgPrecision, 1e-9)
	assert.Equal(t, 3, report.PrecisionSamples)
}
