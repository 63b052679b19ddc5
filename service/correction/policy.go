/*
 * @module service/correction/policy
 * @description 决策策略，依据候选池与置信度阈值裁定自动应用或转人工校验
 * @architecture 分层架构 - 决策层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 候选池 -> 胜出候选 -> 自动应用 / 人工校验任务
 * @rules 自动应用当且仅当胜出置信度达到阈值；空候选池保留原值并生成置信度0的任务
 * @dependencies service/ruleset, service/models
 * @refs generator.go, pipeline.go
 */

package correction

import (
	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
)

// 任务优先级，数值越大越紧急
const (
	PriorityNormal = 0
	PriorityHigh   = 10
	PriorityUrgent = 20
)

// Verdict 单个不一致项的裁定结果
type Verdict struct {
	NewValue    interface{}
	Confidence  float64
	AutoApplied bool
	Source      string // 胜出候选来源，空候选池时为空
	Priority    int    // 转人工时的任务优先级
	Pool        []models.CorrectionCandidate
}

// Decide 对单个不一致项做出裁定
// 胜出候选为池中首位（已按置信度降序、规则优先排序）
func Decide(rs *ruleset.RuleSet, finding models.Inconsistency, pool []models.CorrectionCandidate) Verdict {
	if len(pool) == 0 {
		// 无任何可用候选：保留原值，强制人工裁定
		return Verdict{
			NewValue:    finding.Value,
			Confidence:  0,
			AutoApplied: false,
			Priority:    PriorityUrgent,
			Pool:        pool,
		}
	}

	winner := pool[0]
	verdict := Verdict{
		NewValue:   winner.ProposedValue,
		Confidence: winner.Confidence,
		Source:     winner.Source,
		Pool:       pool,
	}

	if winner.Confidence >= rs.Definition.AutoApplyThreshold {
		verdict.AutoApplied = true
		return verdict
	}

	verdict.Priority = taskPriority(rs, winner.Confidence)
	return verdict
}

// taskPriority 置信度越低越需要尽快人工处理
func taskPriority(rs *ruleset.RuleSet, confidence float64) int {
	if confidence < rs.Definition.ReviewThreshold {
		return PriorityHigh
	}
	return PriorityNormal
}
