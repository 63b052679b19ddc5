/*
 * @module service/correction/policy_test
 * @description 决策策略与候选池排序测试
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 构造候选池 -> 决策 -> 处置结果验证
 * @rules 覆盖自动应用门限、规则优先并列裁决和空候选池
 * @dependencies testing, github.com/stretchr/testify
 * @refs policy.go, generator.go
 */

package correction

import (
	"testing"

	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileTestRules(t *testing.T) *ruleset.RuleSet {
	t.Helper()
	rs, err := ruleset.Compile(1, ruleset.DefaultDefinition())
	require.NoError(t, err)
	return rs
}

func TestDecideAutoApply(t *testing.T) {
	rs := compileTestRules(t)
	finding := models.Inconsistency{Field: "date_of_birth", Value: "14/05/1990", Kind: models.KindFormat}

	verdict := Decide(rs, finding, []models.CorrectionCandidate{
		{Source: models.SourceRule, ProposedValue: "1990-05-14", Confidence: 0.92},
	})
	assert.True(t, verdict.AutoApplied)
	assert.Equal(t, "1990-05-14", verdict.NewValue)
	assert.Equal(t, models.SourceRule, verdict.Source)
}

func TestDecideQueueBelowThreshold(t *testing.T) {
	rs := compileTestRules(t)
	finding := models.Inconsistency{Field: "age", Value: 250, Kind: models.KindDomain}

	verdict := Decide(rs, finding, []models.CorrectionCandidate{
		{Source: models.SourceRule, ProposedValue: 120, Confidence: 0.75},
	})
	assert.False(t, verdict.AutoApplied)
	assert.Equal(t, 120, verdict.NewValue)
	assert.Equal(t, PriorityNormal, verdict.Priority)
}

func TestDecideLowConfidenceHighPriority(t *testing.T) {
	rs := compileTestRules(t)
	finding := models.Inconsistency{Field: "country", Value: "France", Kind: models.KindReferential}

	verdict := Decide(rs, finding, []models.CorrectionCandidate{
		{Source: models.SourceRule, ProposedValue: "Morocco", Confidence: 0.55},
	})
	assert.False(t, verdict.AutoApplied)
	assert.Equal(t, PriorityHigh, verdict.Priority)
}

func TestDecideEmptyPool(t *testing.T) {
	rs := compileTestRules(t)
	finding := models.Inconsistency{Field: "status", Value: "archived", Kind: models.KindDomain}

	verdict := Decide(rs, finding, nil)
	assert.False(t, verdict.AutoApplied)
	// 保留原值，强制人工裁定
	assert.Equal(t, "archived", verdict.NewValue)
	assert.Zero(t, verdict.Confidence)
	assert.Equal(t, PriorityUrgent, verdict.Priority)
}

func TestFilterAndSortRuleBeatsModelOnTie(t *testing.T) {
	pool := []models.CorrectionCandidate{
		{Source: models.SourceModel, ProposedValue: "m", Confidence: 0.8},
		{Source: models.SourceRule, ProposedValue: "r", Confidence: 0.8},
		{Source: models.SourceModel, ProposedValue: "top", Confidence: 0.95},
		{Source: models.SourceRule, ProposedValue: "low", Confidence: 0.3},
	}

	sorted := filterAndSort(pool, 0.5)
	require.Len(t, sorted, 3)
	assert.Equal(t, "top", sorted[0].ProposedValue)
	// 置信度并列时规则候选排在模型候选之前
	assert.Equal(t, models.SourceRule, sorted[1].Source)
	assert.Equal(t, models.SourceModel, sorted[2].Source)
}
