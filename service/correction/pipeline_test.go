/*
 * @module service/correction/pipeline_test
 * @description 修正流水线端到端场景测试，覆盖六类不一致的检测-决策-落库链路
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 内存数据库 -> 批量修正 -> 决策/任务落库验证
 * @rules 每类不一致至少一个端到端场景；模型降级与坏行隔离单独覆盖
 * @dependencies testing, testutil, github.com/stretchr/testify
 * @refs pipeline.go, generator.go, strategies.go
 */

package correction

import (
	"context"
	"sync"
	"testing"
	"time"

	"dataquality-service/service/detection"
	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/suggester"
	"dataquality-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules struct {
	rs *ruleset.RuleSet
}

func (s *staticRules) Current() *ruleset.RuleSet { return s.rs }

type pipelineFixture struct {
	db       *testutil.TestDB
	pipeline *Pipeline
	engine   *detection.Engine
}

func newPipelineFixture(t *testing.T, suggest SuggestFunc) *pipelineFixture {
	t.Helper()
	rs, err := ruleset.Compile(1, ruleset.DefaultDefinition())
	require.NoError(t, err)

	rules := &staticRules{rs: rs}
	windows := detection.NewWindowRegistry(200)
	engine := detection.NewEngine(rules, windows)
	generator := NewGenerator(windows, suggest, time.Second)

	db := testutil.NewTestDB()
	t.Cleanup(db.Close)

	return &pipelineFixture{
		db:       db,
		engine:   engine,
		pipeline: NewPipeline(db.DB, rules, engine, generator, nil, nil, 2),
	}
}

func TestCorrectFormatAutoApplied(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"date_of_birth": "14/05/1990", "email": "alice@example.com"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FindingCount)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Equal(t, 0, result.TasksCreated)
	assert.Equal(t, "1990-05-14", result.Records[0].Corrected["date_of_birth"])

	var decision models.CorrectionDecision
	require.NoError(t, f.db.DB.First(&decision).Error)
	assert.Equal(t, models.KindFormat, decision.Kind)
	assert.True(t, decision.AutoApplied)
	assert.Equal(t, models.SourceRule, decision.Source)
	assert.Equal(t, "1990-05-14", models.UnwrapValue(decision.NewValue))
	assert.Equal(t, 1, decision.RuleSetVersion)

	var taskCount int64
	f.db.DB.Model(&models.ValidationTask{}).Count(&taskCount)
	assert.Zero(t, taskCount)
}

func TestCorrectFormatRepairsCalendarDate(t *testing.T) {
	f := newPipelineFixture(t, nil)

	// 日月分量双双越界，任何布局都解析不了
	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"date_of_birth": "32/13/2024"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FindingCount)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Equal(t, 0, result.TasksCreated)
	assert.Equal(t, "2024-12-31", result.Records[0].Corrected["date_of_birth"])

	var decision models.CorrectionDecision
	require.NoError(t, f.db.DB.First(&decision).Error)
	assert.True(t, decision.AutoApplied)
	assert.Equal(t, models.SourceRule, decision.Source)
	assert.GreaterOrEqual(t, decision.Confidence, 0.9)

	var taskCount int64
	f.db.DB.Model(&models.ValidationTask{}).Count(&taskCount)
	assert.Zero(t, taskCount)
}

func TestCorrectNormalizesEncoding(t *testing.T) {
	f := newPipelineFixture(t, nil)
	// "中文" 的GBK字节序列
	gbk := string([]byte{0xD6, 0xD0, 0xCE, 0xC4})

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"name": gbk, "email": "alice@example.com"},
	}, false)
	require.NoError(t, err)

	assert.Empty(t, result.Records[0].Findings)
	assert.Equal(t, "中文", result.Records[0].Corrected["name"])
}

func TestCorrectDomainQueuesTask(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"age": 250},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, result.AutoApplied)
	assert.Equal(t, 1, result.TasksCreated)
	// 原值保持不变
	assert.Equal(t, 250, result.Records[0].Corrected["age"])

	var task models.ValidationTask
	require.NoError(t, f.db.DB.First(&task).Error)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, models.KindDomain, task.Kind)
	assert.InDelta(t, 0.75, task.Confidence, 1e-9)
	assert.EqualValues(t, 120, models.UnwrapValue(task.ProposedValue))
	assert.NotEmpty(t, task.DecisionID)
}

func TestCorrectReferentialHighPriority(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"city": "Casablanca", "country": "France"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TasksCreated)

	var task models.ValidationTask
	require.NoError(t, f.db.DB.First(&task).Error)
	assert.Equal(t, "country", task.Field)
	assert.Equal(t, PriorityHigh, task.Priority)
	// 前导字段唯一确定的合法补全
	assert.Equal(t, "Morocco", models.UnwrapValue(task.ProposedValue))
}

func TestCorrectTemporalSwap(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"start_date": "2024-06-30", "end_date": "2024-01-01"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TasksCreated)

	var task models.ValidationTask
	require.NoError(t, f.db.DB.First(&task).Error)
	assert.Equal(t, "end_date", task.Field)
	assert.Equal(t, models.KindTemporal, task.Kind)
	assert.Equal(t, "2024-06-30", models.UnwrapValue(task.ProposedValue))
}

func TestCorrectStatisticalMedian(t *testing.T) {
	f := newPipelineFixture(t, nil)

	warmup := make([]map[string]interface{}, 0, 40)
	for i := 0; i < 40; i++ {
		warmup = append(warmup, map[string]interface{}{"amount": 100 + float64(i%10)})
	}
	_, err := f.pipeline.Correct(context.Background(), "ds1", warmup, false)
	require.NoError(t, err)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"amount": 1000000},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.FindingCount)
	assert.Equal(t, 1, result.TasksCreated)

	var task models.ValidationTask
	require.NoError(t, f.db.DB.Order("created_at DESC").First(&task).Error)
	assert.Equal(t, models.KindStatistical, task.Kind)
	proposed, ok := models.UnwrapValue(task.ProposedValue).(float64)
	require.True(t, ok)
	assert.InDelta(t, 104.5, proposed, 5)
}

func TestCorrectEmptyPoolKeepsOldValue(t *testing.T) {
	f := newPipelineFixture(t, nil)

	// 枚举取值域没有确定性修法，候选池为空
	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"status": "archived"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TasksCreated)

	var task models.ValidationTask
	require.NoError(t, f.db.DB.First(&task).Error)
	assert.Zero(t, task.Confidence)
	assert.Equal(t, PriorityUrgent, task.Priority)
	assert.Equal(t, "archived", models.UnwrapValue(task.ProposedValue))

	var decision models.CorrectionDecision
	require.NoError(t, f.db.DB.First(&decision).Error)
	assert.Empty(t, decision.Source)
	assert.Empty(t, decision.CandidatePool)
}

func TestCorrectInvalidRowIsolated(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"email": "alice@example.com"},
		{"nested": map[string]interface{}{"x": 1}},
		{"date_of_birth": "14/05/1990"},
	}, false)
	require.NoError(t, err)

	// 坏行只影响自身
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, models.ErrCodeInvalidRow, result.Records[1].ErrorCode)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Empty(t, result.Records[0].Findings)
}

func TestCorrectModelCandidateWins(t *testing.T) {
	suggest := func(ctx context.Context, reqs []suggester.SuggestRequest, timeout time.Duration) ([]suggester.SuggestResponse, error) {
		responses := make([]suggester.SuggestResponse, 0, len(reqs))
		for _, req := range reqs {
			responses = append(responses, suggester.SuggestResponse{
				Field:         req.Field,
				ProposedValue: "active",
				Confidence:    0.95,
				Rationale:     "历史取值分布最高频",
			})
		}
		return responses, nil
	}
	f := newPipelineFixture(t, suggest)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"status": "actif"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Equal(t, "active", result.Records[0].Corrected["status"])

	var decision models.CorrectionDecision
	require.NoError(t, f.db.DB.First(&decision).Error)
	assert.Equal(t, models.SourceModel, decision.Source)
	assert.True(t, decision.AutoApplied)
}

func TestCorrectSuggesterTimeoutDegrades(t *testing.T) {
	suggest := func(ctx context.Context, reqs []suggester.SuggestRequest, timeout time.Duration) ([]suggester.SuggestResponse, error) {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterTimeout, "建议服务请求超时", nil)
	}
	f := newPipelineFixture(t, suggest)

	// 模型不可用时规则路径照常工作
	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"date_of_birth": "14/05/1990"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Equal(t, "1990-05-14", result.Records[0].Corrected["date_of_birth"])
}

func TestCorrectDryRunPersistsNothing(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"date_of_birth": "14/05/1990", "age": 250},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FindingCount)
	assert.Equal(t, 1, result.AutoApplied)

	var decisionCount, taskCount int64
	f.db.DB.Model(&models.CorrectionDecision{}).Count(&decisionCount)
	f.db.DB.Model(&models.ValidationTask{}).Count(&taskCount)
	assert.Zero(t, decisionCount)
	assert.Zero(t, taskCount)
}

// switchingRules 首次返回当前版本后切换到下一版本，模拟批中途的规则集重载
type switchingRules struct {
	mu      sync.Mutex
	current *ruleset.RuleSet
	next    *ruleset.RuleSet
}

func (s *switchingRules) Current() *ruleset.RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.current
	if s.next != nil {
		s.current = s.next
		s.next = nil
	}
	return rs
}

func TestCorrectUsesSingleRuleSetVersion(t *testing.T) {
	rs1, err := ruleset.Compile(1, ruleset.DefaultDefinition())
	require.NoError(t, err)

	// 第二版把FORMAT策略置信度压到丢弃阈值以下
	def2 := ruleset.DefaultDefinition()
	def2.Strategies["FORMAT"] = ruleset.StrategyConfig{Confidence: 0.2}
	rs2, err := ruleset.Compile(2, def2)
	require.NoError(t, err)

	rules := &switchingRules{current: rs1, next: rs2}
	windows := detection.NewWindowRegistry(200)
	engine := detection.NewEngine(rules, windows)
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	pipeline := NewPipeline(db.DB, rules, engine,
		NewGenerator(windows, nil, time.Second), nil, nil, 1)

	// 入口捕获版本1后，本批的检测、丢弃与自动应用全部按版本1评估
	result, err := pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"date_of_birth": "14/05/1990"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AutoApplied)
	assert.Equal(t, 0, result.TasksCreated)

	var decision models.CorrectionDecision
	require.NoError(t, db.DB.First(&decision).Error)
	assert.Equal(t, 1, decision.RuleSetVersion)
	assert.True(t, decision.AutoApplied)
}

func TestCorrectSemanticTransposition(t *testing.T) {
	f := newPipelineFixture(t, nil)

	result, err := f.pipeline.Correct(context.Background(), "ds1", []map[string]interface{}{
		{"email": "+33612345678", "phone": "alice@example.com"},
	}, false)
	require.NoError(t, err)

	// 两个字段各产生格式与语义发现
	assert.Equal(t, 4, result.FindingCount)

	var tasks []models.ValidationTask
	require.NoError(t, f.db.DB.Find(&tasks).Error)
	found := false
	for _, task := range tasks {
		if task.Kind == models.KindSemantic && task.Field == "email" {
			found = true
			assert.Equal(t, "alice@example.com", models.UnwrapValue(task.ProposedValue))
		}
	}
	assert.True(t, found)
}
