/*
 * @module DecisionPublisher
 * @description 修正决策事件发布器，封装kafka-go生产者，将决策与校验结论投递到审计主题供下游消费
 * @architecture 适配器模式 - 封装第三方Kafka客户端，提供统一的发布接口
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 连接建立 -> 决策事件发送 -> 连接关闭
 * @rules 发布失败只记录日志不阻塞修正主流程；未配置broker时发布器为关闭态，所有调用直接返回
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs service/correction/pipeline.go, service/validation/workflow.go
 */
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// 决策事件类型
const (
	EventDecisionMade      = "decision.made"      // 新决策（自动应用或转人工）
	EventValidationClosed  = "validation.closed"  // 校验任务进入终态
	EventRetrainTriggered  = "retrain.triggered"  // 重训练启动
	EventRuleSetActivated  = "ruleset.activated"  // 规则集版本切换
)

// DecisionEvent 投递到审计主题的事件载荷
type DecisionEvent struct {
	Type       string      `json:"type"`
	DatasetID  string      `json:"dataset_id,omitempty"`
	DecisionID string      `json:"decision_id,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// DecisionPublisher 决策事件发布器
type DecisionPublisher struct {
	writer  *kafka.Writer
	topic   string
	timeout time.Duration
	mutex   sync.Mutex
	closed  bool
}

// NewDecisionPublisher 创建决策事件发布器
// brokers 为空时返回关闭态发布器，Publish 调用全部为空操作
func NewDecisionPublisher(brokers []string, topic string, timeout time.Duration) *DecisionPublisher {
	if len(brokers) == 0 {
		return &DecisionPublisher{closed: true}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	slog.Info("决策事件发布器已初始化", "brokers", brokers, "topic", topic)
	return &DecisionPublisher{writer: writer, topic: topic, timeout: timeout}
}

// Publish 发布单个决策事件
// 失败只记录日志，绝不让审计投递失败影响修正主流程
func (p *DecisionPublisher) Publish(ctx context.Context, event *DecisionEvent) {
	if p.isClosed() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("决策事件序列化失败", "type", event.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(eventKey(event)),
		Value: value,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("决策事件发送失败", "type", event.Type, "decision_id", event.DecisionID, "error", err)
		return
	}
	slog.Debug("决策事件已发送", "type", event.Type, "decision_id", event.DecisionID)
}

// PublishBatch 批量发布决策事件，批内单条序列化失败跳过该条
func (p *DecisionPublisher) PublishBatch(ctx context.Context, events []*DecisionEvent) {
	if p.isClosed() || len(events) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now()
		}
		value, err := json.Marshal(event)
		if err != nil {
			slog.Error("决策事件序列化失败", "type", event.Type, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(eventKey(event)),
			Value: value,
			Time:  event.OccurredAt,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		slog.Error("决策事件批量发送失败", "count", len(msgs), "error", err)
		return
	}
	slog.Debug("决策事件批量发送完成", "count", len(msgs))
}

// Close 关闭发布器
func (p *DecisionPublisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return fmt.Errorf("关闭Kafka生产者失败: %w", err)
		}
	}
	return nil
}

func (p *DecisionPublisher) isClosed() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.closed
}

// eventKey 以数据集为分区键，同一数据集的事件保序
func eventKey(event *DecisionEvent) string {
	if event.DatasetID != "" {
		return event.DatasetID
	}
	return event.Type
}
