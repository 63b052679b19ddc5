/*
 * @module service/detection/engine_test
 * @description 检测引擎测试，覆盖六类规则族与非法记录拒绝，不依赖数据库
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 构造规则集 -> 记录输入 -> 检测结果验证
 * @rules 每类规则族至少覆盖命中与未命中两种路径
 * @dependencies testing, github.com/stretchr/testify
 * @refs engine.go
 */

package detection

import (
	"testing"

	"dataquality-service/service/models"
	"dataquality-service/service/ruleset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticRules 测试用的静态规则集提供器
type staticRules struct {
	rs *ruleset.RuleSet
}

func (s *staticRules) Current() *ruleset.RuleSet { return s.rs }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	rs, err := ruleset.Compile(1, ruleset.DefaultDefinition())
	require.NoError(t, err)
	return NewEngine(&staticRules{rs: rs}, NewWindowRegistry(100))
}

func kindsOf(findings []models.Inconsistency) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Kind]++
	}
	return counts
}

func TestDetectCleanRecord(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{
		"date_of_birth": "1990-05-14",
		"email":         "alice@example.com",
		"age":           34,
		"status":        "active",
		"city":          "Paris",
		"country":       "France",
		"start_date":    "2024-01-01",
		"end_date":      "2024-06-30",
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectInvalidRow(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Detect(nil)
	assert.Equal(t, models.ErrCodeInvalidRow, models.ErrorCode(err))

	_, err = engine.Detect(map[string]interface{}{})
	assert.Equal(t, models.ErrCodeInvalidRow, models.ErrorCode(err))

	// 嵌套结构整条拒绝，不返回部分结果
	_, err = engine.Detect(map[string]interface{}{
		"email":   "alice@example.com",
		"address": map[string]interface{}{"city": "Paris"},
	})
	assert.Equal(t, models.ErrCodeInvalidRow, models.ErrorCode(err))

	_, err = engine.Detect(map[string]interface{}{
		"tags": []interface{}{"a", "b"},
	})
	assert.Equal(t, models.ErrCodeInvalidRow, models.ErrorCode(err))
}

func TestDetectFormat(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{
		"date_of_birth": "14/05/1990",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindFormat, findings[0].Kind)
	assert.Equal(t, "date_of_birth", findings[0].Field)

	// 模式匹配但日历非法
	findings, err = engine.Detect(map[string]interface{}{
		"date_of_birth": "2024-13-32",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindFormat, findings[0].Kind)
}

func TestDetectDomain(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{"age": 250})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindDomain, findings[0].Kind)

	findings, err = engine.Detect(map[string]interface{}{"age": -3})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindDomain, findings[0].Kind)

	findings, err = engine.Detect(map[string]interface{}{"status": "archived"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindDomain, findings[0].Kind)

	findings, err = engine.Detect(map[string]interface{}{"status": "pending"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectReferential(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{
		"city":    "Casablanca",
		"country": "France",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindReferential, findings[0].Kind)
	// 发现落在依赖字段上
	assert.Equal(t, "country", findings[0].Field)

	// 任一字段缺失则跳过该规则
	findings, err = engine.Detect(map[string]interface{}{"city": "Casablanca"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectTemporal(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{
		"start_date": "2024-06-30",
		"end_date":   "2024-01-01",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindTemporal, findings[0].Kind)
	assert.Equal(t, "end_date", findings[0].Field)

	// 相等不算违规
	findings, err = engine.Detect(map[string]interface{}{
		"start_date": "2024-01-01",
		"end_date":   "2024-01-01",
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectStatistical(t *testing.T) {
	engine := newTestEngine(t)

	// 窗口冷启动：样本不足时不判定
	findings, err := engine.Detect(map[string]interface{}{"amount": 1000000})
	require.NoError(t, err)
	assert.Empty(t, findings)

	for i := 0; i < 50; i++ {
		engine.Observe(map[string]interface{}{"amount": 100 + float64(i%10)})
	}

	findings, err = engine.Detect(map[string]interface{}{"amount": 1000000})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindStatistical, findings[0].Kind)

	findings, err = engine.Detect(map[string]interface{}{"amount": 105})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetectSemantic(t *testing.T) {
	engine := newTestEngine(t)

	// 邮箱字段中出现手机号形态的值：语义与格式同时命中
	findings, err := engine.Detect(map[string]interface{}{
		"email": "+33612345678",
	})
	require.NoError(t, err)
	counts := kindsOf(findings)
	assert.Equal(t, 1, counts[models.KindFormat])
	assert.Equal(t, 1, counts[models.KindSemantic])
}

func TestDetectMultipleFindings(t *testing.T) {
	engine := newTestEngine(t)

	findings, err := engine.Detect(map[string]interface{}{
		"date_of_birth": "14/05/1990",
		"age":           -1,
		"city":          "Berlin",
		"country":       "Spain",
		"start_date":    "2025-01-01",
		"end_date":      "2024-01-01",
	})
	require.NoError(t, err)

	counts := kindsOf(findings)
	assert.Equal(t, 1, counts[models.KindFormat])
	assert.Equal(t, 1, counts[models.KindDomain])
	assert.Equal(t, 1, counts[models.KindReferential])
	assert.Equal(t, 1, counts[models.KindTemporal])
}
