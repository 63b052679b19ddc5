/*
 * @module service/detection/engine
 * @description 不一致检测引擎，对单条记录并行无关地执行六类规则族检测
 * @architecture 分层架构 - 检测引擎层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 记录输入 -> 逐规则族检测 -> 不一致项列表输出
 * @rules 检测是纯函数无副作用；非法记录整条拒绝(INVALID_ROW)而不返回部分结果
 * @dependencies service/ruleset, service/models, service/utils
 * @refs statistics.go, service/correction/pipeline.go
 */

package detection

import (
	"fmt"
	"time"

	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"
	"dataquality-service/service/utils"
)

// Engine 检测引擎
// 规则集句柄与统计窗口通过构造函数注入，无全局状态
type Engine struct {
	rules   ruleset.Provider
	windows *WindowRegistry
}

// NewEngine 创建检测引擎实例
func NewEngine(rules ruleset.Provider, windows *WindowRegistry) *Engine {
	return &Engine{rules: rules, windows: windows}
}

// Windows 返回统计窗口注册表，修正策略计算中位数替换时使用
func (e *Engine) Windows() *WindowRegistry {
	return e.windows
}

// Detect 按当前生效规则集检测单条记录的全部不一致项
func (e *Engine) Detect(record map[string]interface{}) ([]models.Inconsistency, error) {
	rs := e.rules.Current()
	if rs == nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则集尚未加载", nil)
	}
	return e.DetectWith(rs, record)
}

// DetectWith 按指定规则集版本检测
// 批处理在入口处捕获一次规则集并传入，保证单条记录的检测与决策全程使用同一版本
// 各规则族相互独立，同一字段可同时产生多类发现
func (e *Engine) DetectWith(rs *ruleset.RuleSet, record map[string]interface{}) ([]models.Inconsistency, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	now := time.Now()
	findings := make([]models.Inconsistency, 0)
	findings = append(findings, e.detectFormat(rs, record, now)...)
	findings = append(findings, e.detectDomain(rs, record, now)...)
	findings = append(findings, e.detectReferential(rs, record, now)...)
	findings = append(findings, e.detectTemporal(rs, record, now)...)
	findings = append(findings, e.detectStatistical(rs, record, now)...)
	findings = append(findings, e.detectSemantic(rs, record, now)...)
	return findings, nil
}

// Observe 将记录中的数值字段写入滚动参考窗口
// 与 Detect 分离，保证检测本身无副作用
func (e *Engine) Observe(record map[string]interface{}) {
	rs := e.rules.Current()
	if rs == nil {
		return
	}
	for field := range rs.Definition.StatisticalRules {
		if raw, ok := record[field]; ok {
			if v, ok := utils.ToFloat(raw); ok {
				e.windows.Observe(field, v)
			}
		}
	}
}

// validateRecord 记录合法性校验，嵌套结构视为非法行
func validateRecord(record map[string]interface{}) error {
	if len(record) == 0 {
		return models.NewPipelineError(models.ErrCodeInvalidRow, "记录为空", nil)
	}
	for field, value := range record {
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			return models.NewPipelineError(models.ErrCodeInvalidRow,
				fmt.Sprintf("字段 %s 包含嵌套结构", field), nil)
		}
	}
	return nil
}

// detectFormat 格式检测：模式不匹配或日期非法
func (e *Engine) detectFormat(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	var findings []models.Inconsistency
	for field, rule := range rs.Definition.FormatRules {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}
		strValue := utils.ToString(raw)
		pattern := rs.Pattern(field)

		if !pattern.MatchString(strValue) {
			findings = append(findings, models.Inconsistency{
				Field:      field,
				Value:      raw,
				Kind:       models.KindFormat,
				Message:    fmt.Sprintf("字段 %s 的值 %q 不符合期望格式 %s", field, strValue, rule.Type),
				DetectedAt: now,
			})
			continue
		}

		// 模式匹配但日历非法的日期（如 2024-13-32）仍属格式问题
		if rule.Type == "date" && rule.Layout != "" {
			if _, err := time.Parse(rule.Layout, strValue); err != nil {
				findings = append(findings, models.Inconsistency{
					Field:      field,
					Value:      raw,
					Kind:       models.KindFormat,
					Message:    fmt.Sprintf("字段 %s 的值 %q 不是合法日历日期", field, strValue),
					DetectedAt: now,
				})
			}
		}
	}
	return findings
}

// detectDomain 取值域检测：数值区间与枚举集合
func (e *Engine) detectDomain(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	var findings []models.Inconsistency
	for field, rule := range rs.Definition.DomainRules {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}

		if rule.Min != nil || rule.Max != nil {
			value, numeric := utils.ToFloat(raw)
			if !numeric {
				findings = append(findings, models.Inconsistency{
					Field:      field,
					Value:      raw,
					Kind:       models.KindDomain,
					Message:    fmt.Sprintf("字段 %s 的值 %v 不是数值", field, raw),
					DetectedAt: now,
				})
				continue
			}
			if (rule.Min != nil && value < *rule.Min) || (rule.Max != nil && value > *rule.Max) {
				findings = append(findings, models.Inconsistency{
					Field:      field,
					Value:      raw,
					Kind:       models.KindDomain,
					Message:    fmt.Sprintf("字段 %s 的值 %v 超出取值范围 [%s, %s]", field, raw, boundText(rule.Min), boundText(rule.Max)),
					DetectedAt: now,
				})
			}
			continue
		}

		if len(rule.AllowedValues) > 0 {
			strValue := utils.ToString(raw)
			valid := false
			for _, allowed := range rule.AllowedValues {
				if strValue == allowed {
					valid = true
					break
				}
			}
			if !valid {
				findings = append(findings, models.Inconsistency{
					Field:      field,
					Value:      raw,
					Kind:       models.KindDomain,
					Message:    fmt.Sprintf("字段 %s 的值 %q 不在允许的取值集合中", field, strValue),
					DetectedAt: now,
				})
			}
		}
	}
	return findings
}

// detectReferential 引用检测：多字段组合必须在合法配对表中
// 发现落在规则的末位字段上（依赖字段），修正策略按前导字段查找唯一补全
func (e *Engine) detectReferential(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	var findings []models.Inconsistency
	for i, rule := range rs.Definition.ReferentialRules {
		values := make([]string, 0, len(rule.Fields))
		complete := true
		for _, field := range rule.Fields {
			raw, ok := record[field]
			if !ok || raw == nil {
				complete = false
				break
			}
			values = append(values, utils.ToString(raw))
		}
		if !complete {
			continue
		}

		if !rs.PairValid(i, values) {
			dependent := rule.Fields[len(rule.Fields)-1]
			findings = append(findings, models.Inconsistency{
				Field:      dependent,
				Value:      record[dependent],
				Kind:       models.KindReferential,
				Message:    fmt.Sprintf("字段组合 %v = %v 不在合法配对表中", rule.Fields, values),
				DetectedAt: now,
			})
		}
	}
	return findings
}

// detectTemporal 时序检测：start 不得晚于 end
func (e *Engine) detectTemporal(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	var findings []models.Inconsistency
	for _, rule := range rs.Definition.TemporalRules {
		startRaw, okStart := record[rule.StartField]
		endRaw, okEnd := record[rule.EndField]
		if !okStart || !okEnd || startRaw == nil || endRaw == nil {
			continue
		}

		start, _, okStart := utils.ParseDate(utils.ToString(startRaw))
		end, _, okEnd := utils.ParseDate(utils.ToString(endRaw))
		if !okStart || !okEnd {
			// 无法解析的日期由格式检测负责
			continue
		}

		if start.After(end) {
			findings = append(findings, models.Inconsistency{
				Field:      rule.EndField,
				Value:      endRaw,
				Kind:       models.KindTemporal,
				Message:    fmt.Sprintf("字段 %s (%v) 早于 %s (%v)", rule.EndField, endRaw, rule.StartField, startRaw),
				DetectedAt: now,
			})
		}
	}
	return findings
}

// detectStatistical 统计检测：相对滚动参考窗口的离群值
func (e *Engine) detectStatistical(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	var findings []models.Inconsistency
	for field, rule := range rs.Definition.StatisticalRules {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}
		value, numeric := utils.ToFloat(raw)
		if !numeric {
			continue
		}

		result := e.windows.Check(field, value, rule)
		if result.IsOutlier {
			findings = append(findings, models.Inconsistency{
				Field: field,
				Value: raw,
				Kind:  models.KindStatistical,
				Message: fmt.Sprintf("字段 %s 的值 %v 超出参考分布边界 [%.4g, %.4g] (z=%.2f, 样本=%d)",
					field, raw, result.Lower, result.Upper, result.ZScore, result.Samples),
				DetectedAt: now,
			})
		}
	}
	return findings
}

// detectSemantic 语义检测：值形态与其他字段的期望模式匹配
// 典型情形是串列错位，如邮箱字段中出现手机号形态的值
func (e *Engine) detectSemantic(rs *ruleset.RuleSet, record map[string]interface{}, now time.Time) []models.Inconsistency {
	if !rs.Definition.SemanticEnabled {
		return nil
	}

	var findings []models.Inconsistency
	for field := range rs.Definition.FormatRules {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}
		strValue := utils.ToString(raw)

		own := rs.Pattern(field)
		if own == nil || own.MatchString(strValue) {
			continue
		}

		for otherField, otherPattern := range rs.Patterns() {
			if otherField == field {
				continue
			}
			if otherPattern.MatchString(strValue) {
				findings = append(findings, models.Inconsistency{
					Field:      field,
					Value:      raw,
					Kind:       models.KindSemantic,
					Message:    fmt.Sprintf("字段 %s 的值 %q 形态更接近字段 %s 的期望模式", field, strValue, otherField),
					DetectedAt: now,
				})
				break
			}
		}
	}
	return findings
}

func boundText(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
