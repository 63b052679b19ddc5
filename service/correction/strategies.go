/*
 * @module service/correction/strategies
 * @description 确定性规则修正策略，按不一致类型生成修正候选，支持yaegi脚本覆盖内置策略
 * @architecture 分层架构 - 修正策略层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 不一致项 -> 类型对应策略 -> 修正候选或无候选
 * @rules 策略只生成候选不落库不改记录；无安全修法时返回无候选而非低质量猜测
 * @dependencies service/ruleset, service/detection, service/models, service/utils
 * @refs generator.go, service/ruleset/builtin.go
 */

package correction

import (
	"fmt"

	"dataquality-service/service/detection"
	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/utils"
)

// ruleCandidate 按不一致类型执行确定性规则策略
// 返回 nil 表示该类型对当前值没有安全修法
func ruleCandidate(rs *ruleset.RuleSet, windows *detection.WindowRegistry,
	record map[string]interface{}, finding models.Inconsistency) *models.CorrectionCandidate {

	cfg, ok := rs.Strategy(finding.Kind)
	if !ok {
		return nil
	}

	// 脚本策略优先于内置策略
	if script := rs.Script(finding.Kind); script != nil {
		proposed, confidence := script(utils.ToString(finding.Value), cfg.Params)
		if proposed == "" || confidence <= 0 {
			return nil
		}
		return &models.CorrectionCandidate{
			Source:        models.SourceRule,
			ProposedValue: proposed,
			Confidence:    clamp01(confidence),
			Rationale:     "自定义脚本策略",
		}
	}

	switch finding.Kind {
	case models.KindFormat:
		return formatCandidate(rs, finding, cfg)
	case models.KindDomain:
		return domainCandidate(rs, finding, cfg)
	case models.KindReferential:
		return referentialCandidate(rs, record, finding, cfg)
	case models.KindTemporal:
		return temporalCandidate(rs, record, finding, cfg)
	case models.KindStatistical:
		return statisticalCandidate(windows, finding, cfg)
	case models.KindSemantic:
		return semanticCandidate(rs, record, finding, cfg)
	}
	return nil
}

// formatCandidate 格式规整：日期按标准布局重排，其余类型做文本规整后复验
func formatCandidate(rs *ruleset.RuleSet, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	rule, ok := rs.Definition.FormatRules[finding.Field]
	if !ok {
		return nil
	}
	raw := utils.ToString(finding.Value)

	if rule.Type == "date" && rule.Layout != "" {
		if parsed, layout, ok := utils.ParseDate(raw); ok {
			return &models.CorrectionCandidate{
				Source:        models.SourceRule,
				ProposedValue: parsed.Format(rule.Layout),
				Confidence:    cfg.Confidence,
				Rationale:     fmt.Sprintf("日期由布局 %s 规整为 %s", layout, rule.Layout),
			}
		}
		// 任何布局都解析不了的日期按分量修复，如 32/13/2024
		repaired, ok := utils.RepairDate(raw)
		if !ok {
			return nil
		}
		return &models.CorrectionCandidate{
			Source:        models.SourceRule,
			ProposedValue: repaired.Format(rule.Layout),
			Confidence:    cfg.Confidence,
			Rationale:     fmt.Sprintf("日历分量越界，修复为合法日期 %s", repaired.Format(rule.Layout)),
		}
	}

	normalized := utils.NormalizeText(raw)
	pattern := rs.Pattern(finding.Field)
	if pattern == nil || normalized == raw || !pattern.MatchString(normalized) {
		return nil
	}
	return &models.CorrectionCandidate{
		Source:        models.SourceRule,
		ProposedValue: normalized,
		Confidence:    cfg.Confidence,
		Rationale:     "文本规整后匹配期望格式",
	}
}

// domainCandidate 取值域修正：数值区间按 clamp 模式截断到边界，枚举集合无安全修法
func domainCandidate(rs *ruleset.RuleSet, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	rule, ok := rs.Definition.DomainRules[finding.Field]
	if !ok {
		return nil
	}
	if mode, _ := cfg.Params["mode"].(string); mode != "clamp" {
		return nil
	}

	value, numeric := utils.ToFloat(finding.Value)
	if !numeric {
		return nil
	}

	switch {
	case rule.Min != nil && value < *rule.Min:
		return &models.CorrectionCandidate{
			Source:        models.SourceRule,
			ProposedValue: *rule.Min,
			Confidence:    cfg.Confidence,
			Rationale:     fmt.Sprintf("截断到取值下界 %g", *rule.Min),
		}
	case rule.Max != nil && value > *rule.Max:
		return &models.CorrectionCandidate{
			Source:        models.SourceRule,
			ProposedValue: *rule.Max,
			Confidence:    cfg.Confidence,
			Rationale:     fmt.Sprintf("截断到取值上界 %g", *rule.Max),
		}
	}
	return nil
}

// referentialCandidate 引用修正：前导字段确定唯一合法补全时提出依赖字段的修正
func referentialCandidate(rs *ruleset.RuleSet, record map[string]interface{}, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	for i, rule := range rs.Definition.ReferentialRules {
		dependent := rule.Fields[len(rule.Fields)-1]
		if dependent != finding.Field {
			continue
		}

		leading := make([]string, 0, len(rule.Fields)-1)
		complete := true
		for _, field := range rule.Fields[:len(rule.Fields)-1] {
			raw, ok := record[field]
			if !ok || raw == nil {
				complete = false
				break
			}
			leading = append(leading, utils.ToString(raw))
		}
		if !complete {
			continue
		}

		if completion, ok := rs.Completion(i, leading); ok {
			return &models.CorrectionCandidate{
				Source:        models.SourceRule,
				ProposedValue: completion,
				Confidence:    cfg.Confidence,
				Rationale:     fmt.Sprintf("前导字段 %v 唯一确定的合法补全", rule.Fields[:len(rule.Fields)-1]),
			}
		}
	}
	return nil
}

// temporalCandidate 时序修正：swap 模式将 end 字段修正为 start 字段的值
func temporalCandidate(rs *ruleset.RuleSet, record map[string]interface{}, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	if mode, _ := cfg.Params["mode"].(string); mode != "swap" {
		return nil
	}
	for _, rule := range rs.Definition.TemporalRules {
		if rule.EndField != finding.Field {
			continue
		}
		startRaw, ok := record[rule.StartField]
		if !ok || startRaw == nil {
			continue
		}
		return &models.CorrectionCandidate{
			Source:        models.SourceRule,
			ProposedValue: startRaw,
			Confidence:    cfg.Confidence,
			Rationale:     fmt.Sprintf("疑似与 %s 录反，取其值修正顺序", rule.StartField),
		}
	}
	return nil
}

// statisticalCandidate 统计修正：replacement=median 时以窗口中位数替换离群值
func statisticalCandidate(windows *detection.WindowRegistry, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	if replacement, _ := cfg.Params["replacement"].(string); replacement != "median" {
		return nil
	}
	median, ok := windows.Median(finding.Field)
	if !ok {
		return nil
	}
	return &models.CorrectionCandidate{
		Source:        models.SourceRule,
		ProposedValue: median,
		Confidence:    cfg.Confidence,
		Rationale:     fmt.Sprintf("以参考窗口中位数 %g 替换离群值", median),
	}
}

// semanticCandidate 语义修正：记录中存在匹配本字段模式的其他值时提出换位修正
func semanticCandidate(rs *ruleset.RuleSet, record map[string]interface{}, finding models.Inconsistency, cfg ruleset.StrategyConfig) *models.CorrectionCandidate {
	pattern := rs.Pattern(finding.Field)
	if pattern == nil {
		return nil
	}
	for otherField, otherRaw := range record {
		if otherField == finding.Field || otherRaw == nil {
			continue
		}
		otherValue := utils.ToString(otherRaw)
		if pattern.MatchString(otherValue) {
			return &models.CorrectionCandidate{
				Source:        models.SourceRule,
				ProposedValue: otherRaw,
				Confidence:    cfg.Confidence,
				Rationale:     fmt.Sprintf("疑似与字段 %s 串列，取其值修正", otherField),
			}
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
