/*
 * @module service/correction/generator
 * @description 修正候选生成器，汇聚规则策略与模型建议两条路径并按置信度排序
 * @architecture 分层架构 - 候选生成层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 不一致项 -> 规则候选 + 模型候选 -> 丢弃低置信候选 -> 排序候选池
 * @rules 模型路径超时或出错时降级为纯规则路径，不阻塞决策；置信度并列时规则候选优先
 * @dependencies service/suggester, service/ruleset, service/detection, service/models
 * @refs strategies.go, policy.go, pipeline.go
 */

package correction

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"dataquality-service/service/detection"
	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/suggester"
)

// SuggestFunc 模型建议调用，生产实现为 suggester.Suggest，测试可替换
type SuggestFunc func(ctx context.Context, requests []suggester.SuggestRequest, timeout time.Duration) ([]suggester.SuggestResponse, error)

// Generator 候选生成器
type Generator struct {
	windows      *detection.WindowRegistry
	suggest      SuggestFunc
	modelEnabled bool
	timeout      time.Duration
}

// NewGenerator 创建候选生成器
// suggest 为 nil 时禁用模型路径，仅保留规则策略
func NewGenerator(windows *detection.WindowRegistry, suggest SuggestFunc, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = suggester.DefaultTimeout
	}
	return &Generator{
		windows:      windows,
		suggest:      suggest,
		modelEnabled: suggest != nil,
		timeout:      timeout,
	}
}

// Generate 按调用方捕获的规则集版本为一条记录的全部不一致项生成候选池
// 返回与 findings 等长的切片，池内按置信度降序，并列时 RULE 在前
func (g *Generator) Generate(ctx context.Context, rs *ruleset.RuleSet, record map[string]interface{}, findings []models.Inconsistency) [][]models.CorrectionCandidate {
	pools := make([][]models.CorrectionCandidate, len(findings))

	for i, finding := range findings {
		if candidate := ruleCandidate(rs, g.windows, record, finding); candidate != nil {
			pools[i] = append(pools[i], *candidate)
		}
	}

	if g.modelEnabled {
		g.appendModelCandidates(ctx, record, findings, pools)
	}

	discard := rs.Definition.DiscardThreshold
	for i := range pools {
		pools[i] = filterAndSort(pools[i], discard)
	}
	return pools
}

// appendModelCandidates 批量请求模型建议并分配到对应候选池
// 任何失败只记录日志并降级，规则候选不受影响
func (g *Generator) appendModelCandidates(ctx context.Context, record map[string]interface{}, findings []models.Inconsistency, pools [][]models.CorrectionCandidate) {
	requests := make([]suggester.SuggestRequest, 0, len(findings))
	for _, finding := range findings {
		requests = append(requests, suggester.SuggestRequest{
			Field:   finding.Field,
			Value:   finding.Value,
			Kind:    finding.Kind,
			Context: record,
		})
	}

	responses, err := g.suggest(ctx, requests, g.timeout)
	if err != nil {
		slog.Warn("模型建议不可用，降级为纯规则路径",
			"code", models.ErrorCode(err), "findings", len(findings), "error", err)
		return
	}

	used := make([]bool, len(responses))
	for i, finding := range findings {
		for j, resp := range responses {
			if used[j] || resp.Field != finding.Field {
				continue
			}
			used[j] = true
			pools[i] = append(pools[i], models.CorrectionCandidate{
				Source:        models.SourceModel,
				ProposedValue: resp.ProposedValue,
				Confidence:    clamp01(resp.Confidence),
				Rationale:     resp.Rationale,
			})
			break
		}
	}
}

// filterAndSort 丢弃低于丢弃阈值的候选并稳定排序
func filterAndSort(pool []models.CorrectionCandidate, discard float64) []models.CorrectionCandidate {
	kept := pool[:0]
	for _, candidate := range pool {
		if candidate.Confidence >= discard {
			kept = append(kept, candidate)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].Source == models.SourceRule && kept[j].Source == models.SourceModel
	})
	return kept
}
