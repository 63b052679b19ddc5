/*
 * @module service/ruleset/builtin
 * @description 内置规则集定义，首次启动时落库为版本1，覆盖常见字段的六类检测规则与修正策略
 * @architecture 分层架构 - 规则配置层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 服务首次启动 -> 内置定义落库并激活
 * @rules 内置定义只作为版本1的种子，后续调整一律通过新版本
 * @dependencies 无
 * @refs repository.go, service/init.go
 */

package ruleset

func floatPtr(v float64) *float64 { return &v }

// DefaultDefinition 内置规则集定义
func DefaultDefinition() *Definition {
	return &Definition{
		Name:               "builtin",
		AutoApplyThreshold: DefaultAutoApplyThreshold,
		ReviewThreshold:    DefaultReviewThreshold,
		DiscardThreshold:   DefaultDiscardThreshold,
		AuditSampleRate:    DefaultAuditSampleRate,
		FormatRules: map[string]FormatRule{
			"date_of_birth": {
				Type:    "date",
				Pattern: `^\d{4}-\d{2}-\d{2}$`,
				Layout:  "2006-01-02",
			},
			"start_date": {
				Type:    "date",
				Pattern: `^\d{4}-\d{2}-\d{2}$`,
				Layout:  "2006-01-02",
			},
			"end_date": {
				Type:    "date",
				Pattern: `^\d{4}-\d{2}-\d{2}$`,
				Layout:  "2006-01-02",
			},
			"email": {
				Type:    "email",
				Pattern: `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
			},
			"phone": {
				Type:    "phone",
				Pattern: `^\+?[0-9]{8,15}$`,
			},
			"national_id": {
				Type:    "identifier",
				Pattern: `^[A-Z0-9]{6,18}$`,
			},
		},
		DomainRules: map[string]DomainRule{
			"age": {
				Min: floatPtr(0),
				Max: floatPtr(120),
			},
			"status": {
				AllowedValues: []string{"active", "inactive", "pending"},
			},
		},
		ReferentialRules: []ReferentialRule{
			{
				Fields: []string{"city", "country"},
				ValidPairs: [][]string{
					{"Paris", "France"},
					{"Casablanca", "Morocco"},
					{"Rabat", "Morocco"},
					{"Berlin", "Germany"},
					{"Madrid", "Spain"},
				},
			},
		},
		TemporalRules: []TemporalRule{
			{StartField: "start_date", EndField: "end_date"},
			{StartField: "date_of_birth", EndField: "start_date"},
		},
		StatisticalRules: map[string]StatisticalRule{
			"amount": {
				Method:        "both",
				ZThreshold:    3.0,
				IQRMultiplier: 1.5,
				MinSamples:    20,
			},
		},
		SemanticEnabled: true,
		Strategies: map[string]StrategyConfig{
			"FORMAT": {
				Confidence: 0.92,
			},
			"DOMAIN": {
				Confidence: 0.75,
				Params:     map[string]interface{}{"mode": "clamp"},
			},
			"REFERENTIAL": {
				// 多字段组合没有唯一确定的安全修法，仅给出低置信度透传
				Confidence: 0.55,
			},
			"TEMPORAL": {
				Confidence: 0.85,
				Params:     map[string]interface{}{"mode": "swap"},
			},
			"STATISTICAL": {
				Confidence: 0.7,
				Params:     map[string]interface{}{"replacement": "median"},
			},
			"SEMANTIC": {
				Confidence: 0.65,
			},
		},
	}
}
