/*
 * @module service/correction/pipeline
 * @description 修正流水线编排，批量记录经检测、候选生成、决策后持久化并发布审计事件
 * @architecture 分层架构 - 流水线编排层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 记录批量 -> 并发逐条检测决策 -> 事务落库 -> 审计事件发布 -> 批量结果
 * @rules 单条记录失败只影响该条；决策与任务同事务写入；事件发布与审计抽样失败不阻塞主流程
 * @dependencies gorm.io/gorm, client/connectors, service/detection, service/models
 * @refs generator.go, policy.go, service/validation/workflow.go
 */

package correction

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"dataquality-service/client/connectors"
	"dataquality-service/service/detection"
	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/utils"

	"gorm.io/gorm"
)

// DefaultWorkers 批处理默认并发度
const DefaultWorkers = 4

// LatencyRecorder 处理耗时上报接口，KPI跟踪器是生产实现
type LatencyRecorder interface {
	RecordBatch(datasetID string, rows int, elapsed time.Duration)
}

// Pipeline 修正流水线
type Pipeline struct {
	db        *gorm.DB
	rules     ruleset.Provider
	engine    *detection.Engine
	generator *Generator
	publisher *connectors.DecisionPublisher
	latency   LatencyRecorder
	workers   int
}

// NewPipeline 创建修正流水线
// publisher 与 latency 允许为 nil，对应能力关闭
func NewPipeline(db *gorm.DB, rules ruleset.Provider, engine *detection.Engine,
	generator *Generator, publisher *connectors.DecisionPublisher, latency LatencyRecorder, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		db:        db,
		rules:     rules,
		engine:    engine,
		generator: generator,
		publisher: publisher,
		latency:   latency,
		workers:   workers,
	}
}

// RecordOutcome 单条记录的处理结果
type RecordOutcome struct {
	Index       int                         `json:"index"`
	Corrected   map[string]interface{}      `json:"corrected,omitempty"` // 自动修正后的记录
	Findings    []models.Inconsistency      `json:"findings"`
	Decisions   []models.CorrectionDecision `json:"decisions,omitempty"`
	TaskIDs     []string                    `json:"task_ids,omitempty"`
	ErrorCode   string                      `json:"error_code,omitempty"`
	ErrorDetail string                      `json:"error_detail,omitempty"`
}

// BatchResult 批处理汇总结果
type BatchResult struct {
	DatasetID    string          `json:"dataset_id"`
	Total        int             `json:"total"`
	Rejected     int             `json:"rejected"`
	FindingCount int             `json:"finding_count"`
	AutoApplied  int             `json:"auto_applied"`
	TasksCreated int             `json:"tasks_created"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	Records      []RecordOutcome `json:"records"`
}

// Detect 只检测不修正，供数据预检接口使用
// 规则集在入口处捕获一次，整批使用同一版本
func (p *Pipeline) Detect(records []map[string]interface{}) []RecordOutcome {
	rs := p.rules.Current()
	outcomes := make([]RecordOutcome, len(records))
	for i, record := range records {
		outcomes[i] = RecordOutcome{Index: i}
		if rs == nil {
			outcomes[i].ErrorCode = models.ErrCodeRuleLoad
			outcomes[i].ErrorDetail = "规则集尚未加载"
			continue
		}
		findings, err := p.engine.DetectWith(rs, utils.NormalizeEncoding(record))
		if err != nil {
			outcomes[i].ErrorCode = models.ErrorCode(err)
			outcomes[i].ErrorDetail = err.Error()
			continue
		}
		outcomes[i].Findings = findings
	}
	return outcomes
}

// Correct 批量修正入口
// dryRun 为真时照常检测与决策但不落库不发事件，用于预演阈值调整效果
func (p *Pipeline) Correct(ctx context.Context, datasetID string, records []map[string]interface{}, dryRun bool) (*BatchResult, error) {
	rs := p.rules.Current()
	if rs == nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则集尚未加载", nil)
	}

	start := time.Now()
	result := &BatchResult{
		DatasetID: datasetID,
		Total:     len(records),
		Records:   make([]RecordOutcome, len(records)),
	}

	// 工作池并发处理，单条失败只影响该条
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				result.Records[i] = p.correctOne(ctx, rs, datasetID, i, records[i], dryRun)
			}
		}()
	}
	for i := range records {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	var events []*connectors.DecisionEvent
	for _, outcome := range result.Records {
		if outcome.ErrorCode != "" {
			result.Rejected++
			continue
		}
		result.FindingCount += len(outcome.Findings)
		result.TasksCreated += len(outcome.TaskIDs)
		for i := range outcome.Decisions {
			decision := &outcome.Decisions[i]
			if decision.AutoApplied {
				result.AutoApplied++
			}
			if !dryRun {
				events = append(events, &connectors.DecisionEvent{
					Type:       connectors.EventDecisionMade,
					DatasetID:  datasetID,
					DecisionID: decision.ID,
					Payload:    decision,
				})
			}
		}
	}

	if p.publisher != nil && len(events) > 0 {
		p.publisher.PublishBatch(ctx, events)
	}

	elapsed := time.Since(start)
	result.ElapsedMs = elapsed.Milliseconds()
	batchDuration.Observe(elapsed.Seconds())
	if p.latency != nil && !dryRun {
		p.latency.RecordBatch(datasetID, len(records), elapsed)
	}

	slog.Info("修正批次完成", "dataset", datasetID, "total", result.Total,
		"findings", result.FindingCount, "auto_applied", result.AutoApplied,
		"tasks", result.TasksCreated, "rejected", result.Rejected, "elapsed_ms", result.ElapsedMs)
	return result, nil
}

// correctOne 处理单条记录：编码规整 -> 检测 -> 候选生成 -> 决策 -> 落库
// 入口捕获的规则集贯穿检测、候选丢弃与自动应用判定，批中途的重载不影响本条
func (p *Pipeline) correctOne(ctx context.Context, rs *ruleset.RuleSet, datasetID string, index int, record map[string]interface{}, dryRun bool) RecordOutcome {
	outcome := RecordOutcome{Index: index}

	// GBK来源的字节串入管道前统一转为UTF-8
	record = utils.NormalizeEncoding(record)

	findings, err := p.engine.DetectWith(rs, record)
	if err != nil {
		rejectedRowsTotal.Inc()
		outcome.ErrorCode = models.ErrorCode(err)
		outcome.ErrorDetail = err.Error()
		return outcome
	}
	outcome.Findings = findings
	outcome.Corrected = utils.CloneRecord(record)

	if len(findings) == 0 {
		if !dryRun {
			p.engine.Observe(record)
		}
		return outcome
	}
	for _, finding := range findings {
		findingsTotal.WithLabelValues(finding.Kind).Inc()
	}

	pools := p.generator.Generate(ctx, rs, record, findings)

	decisions := make([]*models.CorrectionDecision, 0, len(findings))
	tasks := make([]*models.ValidationTask, 0)
	for i, finding := range findings {
		verdict := Decide(rs, finding, pools[i])

		decision := &models.CorrectionDecision{
			DatasetID:      datasetID,
			Field:          finding.Field,
			Kind:           finding.Kind,
			OldValue:       models.WrapValue(finding.Value),
			NewValue:       models.WrapValue(verdict.NewValue),
			Confidence:     verdict.Confidence,
			AutoApplied:    verdict.AutoApplied,
			Source:         verdict.Source,
			CandidatePool:  poolToJSONB(verdict.Pool),
			RuleSetVersion: rs.Version,
		}
		decisions = append(decisions, decision)

		if verdict.AutoApplied {
			outcome.Corrected[finding.Field] = verdict.NewValue
			decisionsTotal.WithLabelValues("auto_applied", verdict.Source).Inc()
		} else {
			tasks = append(tasks, &models.ValidationTask{
				DatasetID:     datasetID,
				Field:         finding.Field,
				Kind:          finding.Kind,
				Priority:      verdict.Priority,
				OldValue:      models.WrapValue(finding.Value),
				ProposedValue: models.WrapValue(verdict.NewValue),
				Confidence:    verdict.Confidence,
			})
			decisionsTotal.WithLabelValues("queued", verdict.Source).Inc()
		}
	}

	if !dryRun {
		if err := p.persist(rs, datasetID, decisions, tasks); err != nil {
			outcome.ErrorCode = models.ErrorCode(err)
			outcome.ErrorDetail = err.Error()
			outcome.Corrected = nil
			return outcome
		}
		p.engine.Observe(outcome.Corrected)
	}

	for _, decision := range decisions {
		outcome.Decisions = append(outcome.Decisions, *decision)
	}
	for _, task := range tasks {
		outcome.TaskIDs = append(outcome.TaskIDs, task.ID)
	}
	return outcome
}

// persist 决策、任务与抽样审计同事务写入
// 任务的 DecisionID 在事务内回填，保证任务与决策一一对应
func (p *Pipeline) persist(rs *ruleset.RuleSet, datasetID string, decisions []*models.CorrectionDecision, tasks []*models.ValidationTask) error {
	err := p.db.Transaction(func(tx *gorm.DB) error {
		taskIdx := 0
		for _, decision := range decisions {
			if err := tx.Create(decision).Error; err != nil {
				return fmt.Errorf("写入修正决策失败: %w", err)
			}

			if decision.AutoApplied {
				// 自动修正按比例抽样送人工审计，支撑精度指标
				if rand.Float64() < rs.Definition.AuditSampleRate {
					audit := &models.CorrectionAudit{
						DecisionID: decision.ID,
						DatasetID:  datasetID,
					}
					if err := tx.Create(audit).Error; err != nil {
						return fmt.Errorf("写入抽样审计失败: %w", err)
					}
				}
				continue
			}

			task := tasks[taskIdx]
			taskIdx++
			task.DecisionID = decision.ID
			if err := tx.Create(task).Error; err != nil {
				return fmt.Errorf("写入校验任务失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.NewPipelineError(models.ErrCodePersistence, "修正结果持久化失败", err)
	}
	return nil
}

// poolToJSONB 候选池转为可持久化的JSONB数组
func poolToJSONB(pool []models.CorrectionCandidate) models.JSONBArray {
	arr := make(models.JSONBArray, 0, len(pool))
	for _, candidate := range pool {
		arr = append(arr, models.JSONB{
			"source":         candidate.Source,
			"proposed_value": candidate.ProposedValue,
			"confidence":     candidate.Confidence,
			"rationale":      candidate.Rationale,
		})
	}
	return arr
}
