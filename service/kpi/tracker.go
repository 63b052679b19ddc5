/*
 * @module service/kpi/tracker
 * @description 质量KPI跟踪器，按周期计算检出率、自动修正精度等指标并落为只追加快照
 * @architecture 分层架构 - 指标统计层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 流水线上报吞吐 -> 定时/手动触发 -> 指标计算 -> 快照追加
 * @rules 快照只追加从不重算历史；单项指标不可读时记入missing_fields产出部分快照而非整体失败
 * @dependencies gorm.io/gorm, github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/correction/pipeline.go, service/models
 */

package kpi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dataquality-service/service/distributed_lock"
	"dataquality-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DefaultSchedule 默认快照周期：每小时整点
const DefaultSchedule = "0 * * * *"

// snapshotLockKey KPI快照的跨实例防重锁
const snapshotLockKey = "kpi_snapshot"

// throughput 自上次快照以来的吞吐累计
type throughput struct {
	rows    int64
	elapsed time.Duration
}

// Tracker KPI跟踪器
type Tracker struct {
	db       *gorm.DB
	executor *distributed_lock.LockExecutor
	cron     *cron.Cron

	mu      sync.Mutex
	batches map[string]*throughput // datasetID -> 吞吐累计，""为全局
}

// NewTracker 创建KPI跟踪器
// executor 允许为 nil（单实例部署无需防重）
func NewTracker(db *gorm.DB, executor *distributed_lock.LockExecutor) *Tracker {
	return &Tracker{
		db:       db,
		executor: executor,
		batches:  map[string]*throughput{"": {}},
	}
}

// RecordBatch 流水线批处理完成后上报吞吐，修正流水线的 LatencyRecorder 实现
func (t *Tracker) RecordBatch(datasetID string, rows int, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range []string{"", datasetID} {
		acc, ok := t.batches[key]
		if !ok {
			acc = &throughput{}
			t.batches[key] = acc
		}
		acc.rows += int64(rows)
		acc.elapsed += elapsed
	}
}

// takeThroughput 取出并清零数据集的吞吐累计
func (t *Tracker) takeThroughput(datasetID string) throughput {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc, ok := t.batches[datasetID]
	if !ok {
		return throughput{}
	}
	out := *acc
	*acc = throughput{}
	return out
}

// StartSchedule 启动定时快照，spec 为空时使用默认周期
func (t *Tracker) StartSchedule(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	t.cron = cron.New()
	_, err := t.cron.AddFunc(spec, func() {
		ctx := context.Background()
		run := func() error {
			_, err := t.TakeSnapshot(ctx, "")
			return err
		}
		if t.executor != nil {
			if err := t.executor.ExecuteWithLock(ctx, snapshotLockKey, 5*time.Minute, run); err != nil {
				slog.Error("定时KPI快照失败", "error", err)
			}
			return
		}
		if err := run(); err != nil {
			slog.Error("定时KPI快照失败", "error", err)
		}
	})
	if err != nil {
		return err
	}
	t.cron.Start()
	slog.Info("KPI快照调度已启动", "spec", spec)
	return nil
}

// Stop 停止定时快照
func (t *Tracker) Stop() {
	if t.cron != nil {
		t.cron.Stop()
	}
}

// TakeSnapshot 计算并追加一份KPI快照
// 周期起点为上一快照时间，无历史快照时回溯一小时
// 单项指标读取失败记入 missing_fields，其余指标照常产出
func (t *Tracker) TakeSnapshot(ctx context.Context, datasetID string) (*models.KPISnapshot, error) {
	now := time.Now()
	periodStart := t.lastSnapshotAt(datasetID, now)

	snapshot := &models.KPISnapshot{
		DatasetID:   datasetID,
		PeriodStart: periodStart,
		PeriodEnd:   now,
		TakenAt:     now,
	}

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("created_at > ? AND created_at <= ?", periodStart, now)
		if datasetID != "" {
			q = q.Where("dataset_id = ?", datasetID)
		}
		return q
	}

	var totalDecisions, autoApplied int64
	decisionsMissing := false
	if err := scope(t.db.WithContext(ctx).Model(&models.CorrectionDecision{})).Count(&totalDecisions).Error; err != nil {
		decisionsMissing = true
		snapshot.MissingFields = append(snapshot.MissingFields, "detection_rate", "auto_correction_rate")
		slog.Error("KPI: 决策计数不可读", "error", err)
	} else {
		if err := scope(t.db.WithContext(ctx).Model(&models.CorrectionDecision{})).
			Where("auto_applied = ?", true).Count(&autoApplied).Error; err != nil {
			snapshot.MissingFields = append(snapshot.MissingFields, "auto_correction_rate")
			slog.Error("KPI: 自动决策计数不可读", "error", err)
		} else if totalDecisions > 0 {
			snapshot.AutoCorrectionRate = float64(autoApplied) / float64(totalDecisions)
		}
	}

	flow := t.takeThroughput(datasetID)
	if flow.rows > 0 {
		// 检出率取每千行决策数的代理口径，处理行数没有不一致标注
		if !decisionsMissing {
			snapshot.DetectionRate = float64(totalDecisions) / float64(flow.rows) * 1000
		}
		snapshot.AvgLatencyPer1000Rows = float64(flow.elapsed.Milliseconds()) / float64(flow.rows) * 1000
	} else {
		snapshot.MissingFields = append(snapshot.MissingFields, "avg_latency_per_1000_rows")
	}

	var accepted, reviewed int64
	auditQuery := scope(t.db.WithContext(ctx).Model(&models.CorrectionAudit{})).Where("verdict != ?", "pending")
	if err := auditQuery.Count(&reviewed).Error; err != nil {
		snapshot.MissingFields = append(snapshot.MissingFields, "auto_correction_precision")
		slog.Error("KPI: 审计计数不可读", "error", err)
	} else if reviewed > 0 {
		if err := scope(t.db.WithContext(ctx).Model(&models.CorrectionAudit{})).
			Where("verdict = ?", "accepted").Count(&accepted).Error; err != nil {
			snapshot.MissingFields = append(snapshot.MissingFields, "auto_correction_precision")
		} else {
			snapshot.AutoCorrectionPrecision = float64(accepted) / float64(reviewed)
		}
	} else {
		// 周期内无已评审的抽样审计
		snapshot.MissingFields = append(snapshot.MissingFields, "auto_correction_precision")
	}

	if delta, ok := t.accuracyDelta(); ok {
		snapshot.AccuracyDelta = delta
	} else {
		snapshot.MissingFields = append(snapshot.MissingFields, "accuracy_delta")
	}

	if err := t.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "KPI快照写入失败", err)
	}

	slog.Info("KPI快照已生成", "dataset", datasetID,
		"decisions", totalDecisions, "auto_rate", snapshot.AutoCorrectionRate,
		"missing", snapshot.MissingFields)
	return snapshot, nil
}

// lastSnapshotAt 上一快照时间，作为本次周期起点
func (t *Tracker) lastSnapshotAt(datasetID string, now time.Time) time.Time {
	var last models.KPISnapshot
	query := t.db.Order("taken_at DESC")
	if datasetID != "" {
		query = query.Where("dataset_id = ?", datasetID)
	} else {
		query = query.Where("dataset_id = ''")
	}
	if err := query.First(&last).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("KPI: 查询上一快照失败", "error", err)
		}
		return now.Add(-time.Hour)
	}
	return last.TakenAt
}

// accuracyDelta 最近两个有效模型版本的留出集精度差
func (t *Tracker) accuracyDelta() (float64, bool) {
	var versions []models.ModelVersion
	err := t.db.Where("status IN ?", []string{"active", "retired"}).
		Order("version DESC").Limit(2).Find(&versions).Error
	if err != nil || len(versions) < 2 {
		return 0, false
	}
	return versions[0].HoldoutAccuracy - versions[1].HoldoutAccuracy, true
}

// ListSnapshots 按时间倒序返回快照历史
func (t *Tracker) ListSnapshots(datasetID string, limit int) ([]models.KPISnapshot, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := t.db.Order("taken_at DESC").Limit(limit)
	if datasetID != "" {
		query = query.Where("dataset_id = ?", datasetID)
	}
	var snapshots []models.KPISnapshot
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "查询KPI快照失败", err)
	}
	return snapshots, nil
}

// Report 近 window 份全局快照的汇总报表
type Report struct {
	Snapshots             int       `json:"snapshots"`
	From                  time.Time `json:"from"`
	To                    time.Time `json:"to"`
	AvgDetectionRate      float64   `json:"avg_detection_rate"`
	AvgAutoCorrectionRate float64   `json:"avg_auto_correction_rate"`
	AvgPrecision          float64   `json:"avg_precision"`
	PrecisionSamples      int       `json:"precision_samples"` // 含精度指标的快照数
	LatestAccuracyDelta   float64   `json:"latest_accuracy_delta"`
	AvgLatencyPer1000Rows float64   `json:"avg_latency_per_1000_rows"`
}

// BuildReport 汇总最近的全局快照
func (t *Tracker) BuildReport(window int) (*Report, error) {
	if window <= 0 {
		window = 24
	}
	var snapshots []models.KPISnapshot
	err := t.db.Where("dataset_id = ''").Order("taken_at DESC").Limit(window).Find(&snapshots).Error
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "查询KPI快照失败", err)
	}

	report := &Report{Snapshots: len(snapshots)}
	if len(snapshots) == 0 {
		return report, nil
	}

	report.From = snapshots[len(snapshots)-1].PeriodStart
	report.To = snapshots[0].PeriodEnd
	report.LatestAccuracyDelta = snapshots[0].AccuracyDelta

	var latencySamples int
	for _, s := range snapshots {
		report.AvgDetectionRate += s.DetectionRate
		report.AvgAutoCorrectionRate += s.AutoCorrectionRate
		if !contains(s.MissingFields, "auto_correction_precision") {
			report.AvgPrecision += s.AutoCorrectionPrecision
			report.PrecisionSamples++
		}
		if !contains(s.MissingFields, "avg_latency_per_1000_rows") {
			report.AvgLatencyPer1000Rows += s.AvgLatencyPer1000Rows
			latencySamples++
		}
	}
	n := float64(len(snapshots))
	report.AvgDetectionRate /= n
	report.AvgAutoCorrectionRate /= n
	if report.PrecisionSamples > 0 {
		report.AvgPrecision /= float64(report.PrecisionSamples)
	}
	if latencySamples > 0 {
		report.AvgLatencyPer1000Rows /= float64(latencySamples)
	}
	return report, nil
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
