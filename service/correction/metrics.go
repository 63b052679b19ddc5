/*
 * @module service/correction/metrics
 * @description 修正流水线Prometheus指标定义
 * @architecture 监控层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 流水线运行时累加指标 -> /metrics 端点暴露
 * @rules 指标只增不减，维度仅用低基数标签
 * @dependencies github.com/prometheus/client_golang
 * @refs pipeline.go, main.go
 */

package correction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "correction_findings_total",
		Help: "检出的不一致项总数，按类型分组",
	}, []string{"kind"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "correction_decisions_total",
		Help: "修正决策总数，按处置结果与胜出来源分组",
	}, []string{"outcome", "source"})

	rejectedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "correction_rejected_rows_total",
		Help: "因结构非法被整条拒绝的记录数",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "correction_batch_duration_seconds",
		Help:    "单批修正处理耗时",
		Buckets: prometheus.DefBuckets,
	})
)
