/*
 * @module service/detection/statistics
 * @description 字段滚动参考窗口与离群检测，基于IQR和z-score双方法
 * @architecture 分层架构 - 检测支撑层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 记录流入 -> 窗口滚动更新 -> 离群判定供检测引擎使用
 * @rules 窗口样本数低于配置下限时不做判定；读写分离，检测路径只读
 * @dependencies gonum.org/v1/gonum/stat, sync
 * @refs engine.go, service/correction/strategies.go
 */

package detection

import (
	"sort"
	"sync"

	"dataquality-service/service/ruleset"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindowCapacity 默认滚动窗口容量
const DefaultWindowCapacity = 500

// OutlierResult 离群判定结果
type OutlierResult struct {
	IsOutlier bool
	ZScore    float64
	Lower     float64 // IQR 推导的下界
	Upper     float64 // IQR 推导的上界
	Median    float64
	Samples   int
}

// fieldWindow 单字段环形窗口
type fieldWindow struct {
	values []float64
	next   int
	full   bool
}

func (w *fieldWindow) observe(v float64) {
	if w.next < len(w.values) && !w.full {
		w.values[w.next] = v
		w.next++
		if w.next == cap(w.values) {
			w.full = true
			w.next = 0
		}
		return
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % cap(w.values)
}

func (w *fieldWindow) snapshot() []float64 {
	n := w.next
	if w.full {
		n = cap(w.values)
	}
	out := make([]float64, n)
	copy(out, w.values[:n])
	return out
}

// WindowRegistry 按字段维护滚动参考窗口，并发安全
type WindowRegistry struct {
	mu       sync.RWMutex
	capacity int
	windows  map[string]*fieldWindow
}

// NewWindowRegistry 创建窗口注册表
func NewWindowRegistry(capacity int) *WindowRegistry {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &WindowRegistry{
		capacity: capacity,
		windows:  make(map[string]*fieldWindow),
	}
}

// Observe 将观测值写入字段窗口
func (r *WindowRegistry) Observe(field string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[field]
	if !ok {
		w = &fieldWindow{values: make([]float64, r.capacity)}
		w.values = w.values[:r.capacity]
		w.next = 0
		r.windows[field] = w
	}
	w.observe(value)
}

// Samples 返回字段窗口当前样本数
func (r *WindowRegistry) Samples(field string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.windows[field]
	if !ok {
		return 0
	}
	if w.full {
		return cap(w.values)
	}
	return w.next
}

// Median 返回字段窗口的中位数
func (r *WindowRegistry) Median(field string) (float64, bool) {
	r.mu.RLock()
	w, ok := r.windows[field]
	if !ok {
		r.mu.RUnlock()
		return 0, false
	}
	values := w.snapshot()
	r.mu.RUnlock()

	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	return stat.Quantile(0.5, stat.Empirical, values, nil), true
}

// Check 依据统计规则判定值是否为离群点
// 样本数不足 MinSamples 时返回非离群，避免冷启动误报
func (r *WindowRegistry) Check(field string, value float64, rule ruleset.StatisticalRule) OutlierResult {
	r.mu.RLock()
	w, ok := r.windows[field]
	if !ok {
		r.mu.RUnlock()
		return OutlierResult{}
	}
	values := w.snapshot()
	r.mu.RUnlock()

	result := OutlierResult{Samples: len(values)}
	if len(values) < rule.MinSamples {
		return result
	}

	sort.Float64s(values)
	q1 := stat.Quantile(0.25, stat.Empirical, values, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, values, nil)
	iqr := q3 - q1
	result.Lower = q1 - rule.IQRMultiplier*iqr
	result.Upper = q3 + rule.IQRMultiplier*iqr
	result.Median = stat.Quantile(0.5, stat.Empirical, values, nil)

	mean := stat.Mean(values, nil)
	stddev := stat.StdDev(values, nil)
	if stddev > 0 {
		result.ZScore = (value - mean) / stddev
	}

	iqrOutlier := value < result.Lower || value > result.Upper
	zOutlier := stddev > 0 && (result.ZScore > rule.ZThreshold || result.ZScore < -rule.ZThreshold)

	switch rule.Method {
	case "zscore":
		result.IsOutlier = zOutlier
	case "both":
		result.IsOutlier = iqrOutlier || zOutlier
	default: // iqr
		result.IsOutlier = iqrOutlier
	}
	return result
}
