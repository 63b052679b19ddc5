/*
 * @module service/ruleset/script
 * @description 自定义修正策略脚本的编译执行，基于yaegi解释器
 * @architecture 工具层 - 动态规则能力
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 脚本源码 -> 解释器编译 -> 可调用策略函数
 * @rules 脚本必须定义 Correct(value string, params map[string]interface{}) (string, float64)
 * @dependencies github.com/traefik/yaegi/interp, github.com/traefik/yaegi/stdlib
 * @refs ruleset.go, service/correction/strategies.go
 */

package ruleset

import (
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// compileScript 编译脚本策略
// 脚本在独立的解释器实例中运行，编译失败会阻止整个规则集生效
func compileScript(src string) (ScriptStrategy, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	wrapped := fmt.Sprintf(`
package strategy

import (
	"fmt"
	"strings"
	"strconv"
	"time"
)

var _ = fmt.Sprintf
var _ = strings.TrimSpace
var _ = strconv.Itoa
var _ = time.Now

%s
`, src)

	if _, err := i.Eval(wrapped); err != nil {
		return nil, fmt.Errorf("脚本求值失败: %w", err)
	}

	v, err := i.Eval("strategy.Correct")
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Correct 入口函数: %w", err)
	}

	fn, ok := v.Interface().(func(string, map[string]interface{}) (string, float64))
	if !ok {
		return nil, fmt.Errorf("Correct 函数签名不符，期望 func(string, map[string]interface{}) (string, float64)")
	}

	return ScriptStrategy(fn), nil
}
