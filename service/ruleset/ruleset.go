/*
 * @module service/ruleset/ruleset
 * @description 规则集定义与编译，包含六类检测规则、修正策略配置和置信度阈值
 * @architecture 分层架构 - 规则配置层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 规则定义加载 -> 模式预编译 -> 只读规则集对外提供
 * @rules 编译后的规则集不可变；任何配置错误在编译期暴露，不进入运行期
 * @dependencies regexp, encoding/json
 * @refs repository.go, service/detection, service/correction
 */

package ruleset

import (
	"encoding/json"
	"fmt"
	"regexp"

	"dataquality-service/service/models"
)

// 默认置信度阈值
const (
	DefaultAutoApplyThreshold = 0.9
	DefaultReviewThreshold    = 0.6
	DefaultDiscardThreshold   = 0.5
	DefaultAuditSampleRate    = 0.05
)

// FormatRule 格式规则：字段值必须匹配的语法模式
type FormatRule struct {
	Type    string `json:"type"`              // date/phone/email/identifier/custom
	Pattern string `json:"pattern"`           // 期望模式的正则表达式
	Layout  string `json:"layout,omitempty"`  // 日期类字段的标准布局
}

// DomainRule 取值域规则：数值区间或枚举值集合
type DomainRule struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// ReferentialRule 引用规则：多字段组合必须出现在合法配对表中
type ReferentialRule struct {
	Fields     []string   `json:"fields"`      // 参与配对的字段，顺序敏感
	ValidPairs [][]string `json:"valid_pairs"` // 合法组合清单
}

// TemporalRule 时序规则：start 字段不得晚于 end 字段
type TemporalRule struct {
	StartField string `json:"start_field"`
	EndField   string `json:"end_field"`
}

// StatisticalRule 统计规则：基于滚动参考窗口的离群检测配置
type StatisticalRule struct {
	Method        string  `json:"method"`         // iqr/zscore/both
	ZThreshold    float64 `json:"z_threshold"`    // z-score 阈值，默认3.0
	IQRMultiplier float64 `json:"iqr_multiplier"` // IQR 倍数，默认1.5
	MinSamples    int     `json:"min_samples"`    // 窗口样本不足时跳过检测
}

// StrategyConfig 修正策略配置，置信度为规则集中定义的固定值
type StrategyConfig struct {
	Confidence float64                `json:"confidence"`
	Script     string                 `json:"script,omitempty"` // 自定义策略的yaegi脚本源码
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Definition 规则集完整定义，持久化为 RuleSetVersion.Definition
type Definition struct {
	Name               string                     `json:"name"`
	AutoApplyThreshold float64                    `json:"auto_apply_threshold"`
	ReviewThreshold    float64                    `json:"review_threshold"`
	DiscardThreshold   float64                    `json:"discard_threshold"`
	AuditSampleRate    float64                    `json:"audit_sample_rate"`
	FormatRules        map[string]FormatRule      `json:"format_rules"`
	DomainRules        map[string]DomainRule      `json:"domain_rules"`
	ReferentialRules   []ReferentialRule          `json:"referential_rules"`
	TemporalRules      []TemporalRule             `json:"temporal_rules"`
	StatisticalRules   map[string]StatisticalRule `json:"statistical_rules"`
	SemanticEnabled    bool                       `json:"semantic_enabled"`
	Strategies         map[string]StrategyConfig  `json:"strategies"` // 按不一致类型索引
}

// Provider 提供当前生效规则集的只读视图，Repository 是生产实现
type Provider interface {
	Current() *RuleSet
}

// ScriptStrategy 编译后的脚本策略函数
// 输入为字段原值与策略参数，输出为修正值与置信度
type ScriptStrategy func(value string, params map[string]interface{}) (string, float64)

// RuleSet 编译后的只读规则集，支持并发读取
type RuleSet struct {
	Version    int
	Definition *Definition

	patterns    map[string]*regexp.Regexp // 字段 -> 预编译格式模式
	pairIndex   map[string]bool           // 引用规则配对索引，键为 rule序号|v1|v2|...
	completions map[string][]string       // 前导字段组合 -> 依赖字段候选值
	scripts     map[string]ScriptStrategy // 不一致类型 -> 脚本策略
}

// Pattern 返回字段的预编译格式模式，不存在返回nil
func (rs *RuleSet) Pattern(field string) *regexp.Regexp {
	return rs.patterns[field]
}

// Patterns 返回全部字段模式，语义检测需要跨字段比对
func (rs *RuleSet) Patterns() map[string]*regexp.Regexp {
	return rs.patterns
}

// PairValid 判断引用规则的取值组合是否合法
func (rs *RuleSet) PairValid(ruleIndex int, values []string) bool {
	return rs.pairIndex[pairKey(ruleIndex, values)]
}

// Completion 按前导字段取值查找依赖字段的唯一合法补全
// 前导组合对应多个合法值时不存在安全修法，返回 false
func (rs *RuleSet) Completion(ruleIndex int, leading []string) (string, bool) {
	candidates := rs.completions[pairKey(ruleIndex, leading)]
	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0], true
}

// Strategy 返回指定不一致类型的策略配置
func (rs *RuleSet) Strategy(kind string) (StrategyConfig, bool) {
	cfg, ok := rs.Definition.Strategies[kind]
	return cfg, ok
}

// Script 返回指定不一致类型的编译后脚本策略，未配置返回nil
func (rs *RuleSet) Script(kind string) ScriptStrategy {
	return rs.scripts[kind]
}

func pairKey(ruleIndex int, values []string) string {
	key := fmt.Sprintf("%d", ruleIndex)
	for _, v := range values {
		key += "|" + v
	}
	return key
}

// Compile 编译规则定义为可执行规则集
// 任何非法模式、非法阈值或脚本编译错误都会使整体编译失败
func Compile(version int, def *Definition) (*RuleSet, error) {
	if def == nil {
		return nil, fmt.Errorf("规则定义为空")
	}

	applyDefaults(def)

	if def.AutoApplyThreshold < 0 || def.AutoApplyThreshold > 1 {
		return nil, fmt.Errorf("auto_apply_threshold 超出 [0,1]: %f", def.AutoApplyThreshold)
	}
	if def.ReviewThreshold > def.AutoApplyThreshold {
		return nil, fmt.Errorf("review_threshold %f 不得大于 auto_apply_threshold %f",
			def.ReviewThreshold, def.AutoApplyThreshold)
	}

	rs := &RuleSet{
		Version:     version,
		Definition:  def,
		patterns:    make(map[string]*regexp.Regexp),
		pairIndex:   make(map[string]bool),
		completions: make(map[string][]string),
		scripts:     make(map[string]ScriptStrategy),
	}

	for field, rule := range def.FormatRules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("字段 %s 的格式规则缺少模式", field)
		}
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("字段 %s 的格式模式编译失败: %w", field, err)
		}
		rs.patterns[field] = compiled
	}

	for i, rule := range def.ReferentialRules {
		if len(rule.Fields) < 2 {
			return nil, fmt.Errorf("引用规则 %d 至少需要两个字段", i)
		}
		for _, pair := range rule.ValidPairs {
			if len(pair) != len(rule.Fields) {
				return nil, fmt.Errorf("引用规则 %d 的配对长度与字段数不一致", i)
			}
			rs.pairIndex[pairKey(i, pair)] = true
			leading := pair[:len(pair)-1]
			dependent := pair[len(pair)-1]
			key := pairKey(i, leading)
			rs.completions[key] = append(rs.completions[key], dependent)
		}
	}

	for _, rule := range def.TemporalRules {
		if rule.StartField == "" || rule.EndField == "" {
			return nil, fmt.Errorf("时序规则缺少 start_field 或 end_field")
		}
	}

	for kind, cfg := range def.Strategies {
		if cfg.Confidence < 0 || cfg.Confidence > 1 {
			return nil, fmt.Errorf("策略 %s 的置信度超出 [0,1]: %f", kind, cfg.Confidence)
		}
		if cfg.Script != "" {
			fn, err := compileScript(cfg.Script)
			if err != nil {
				return nil, fmt.Errorf("策略 %s 的脚本编译失败: %w", kind, err)
			}
			rs.scripts[kind] = fn
		}
	}

	return rs, nil
}

// applyDefaults 填充未配置的阈值默认值
func applyDefaults(def *Definition) {
	if def.AutoApplyThreshold == 0 {
		def.AutoApplyThreshold = DefaultAutoApplyThreshold
	}
	if def.ReviewThreshold == 0 {
		def.ReviewThreshold = DefaultReviewThreshold
	}
	if def.DiscardThreshold == 0 {
		def.DiscardThreshold = DefaultDiscardThreshold
	}
	if def.AuditSampleRate == 0 {
		def.AuditSampleRate = DefaultAuditSampleRate
	}
	for field, rule := range def.StatisticalRules {
		if rule.Method == "" {
			rule.Method = "iqr"
		}
		if rule.ZThreshold == 0 {
			rule.ZThreshold = 3.0
		}
		if rule.IQRMultiplier == 0 {
			rule.IQRMultiplier = 1.5
		}
		if rule.MinSamples == 0 {
			rule.MinSamples = 20
		}
		def.StatisticalRules[field] = rule
	}
}

// ParseDefinition 从 JSONB 解析规则定义
func ParseDefinition(raw models.JSONB) (*Definition, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("序列化规则定义失败: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("解析规则定义失败: %w", err)
	}
	return &def, nil
}

// MarshalDefinition 将规则定义编码为 JSONB 用于持久化
func MarshalDefinition(def *Definition) (models.JSONB, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("编码规则定义失败: %w", err)
	}
	var raw models.JSONB
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解码规则定义失败: %w", err)
	}
	return raw, nil
}
