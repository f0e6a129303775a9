package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"voipbilling/internal/config"
	"voipbilling/internal/model"

	"github.com/IBM/sarama"
)

// CallEventHandler 处理一条呼叫事件
// 返回 error 且 Retryable 为 true 时在原位退避重试，成功前不提交位点
type CallEventHandler interface {
	Dispatch(ctx context.Context, ev *model.CallEvent) error
}

// Retryable 判断错误是否值得重试（存储暂不可用等）
type Retryable func(err error) bool

// CallEventConsumer 消费信令侧的呼叫事件
// 按 account_id 分区，同一账户的事件在同一分区内有序
type CallEventConsumer struct {
	group      sarama.ConsumerGroup
	topic      string
	handler    CallEventHandler
	retryable  Retryable
	minBackoff time.Duration
	maxBackoff time.Duration
}

const (
	defaultMinBackoff = 200 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

func NewCallEventConsumer(cfg *config.KafkaConfig, handler CallEventHandler, retryable Retryable) (*CallEventConsumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = sarama.V2_1_0_0
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = true
	kafkaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategySticky
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 消费者组失败: %w", err)
	}
	return &CallEventConsumer{
		group:      group,
		topic:      cfg.Topic.CallEvents,
		handler:    handler,
		retryable:  retryable,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}, nil
}

// Start 阻塞消费直到 ctx 取消，rebalance 后自动重新加入
func (c *CallEventConsumer) Start(ctx context.Context) {
	log.Printf("[CallEventConsumer] 开始消费: topic=%s", c.topic)

	go func() {
		for err := range c.group.Errors() {
			log.Printf("[CallEventConsumer] 消费者组错误: %v", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.Printf("[CallEventConsumer] Consume 失败: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			log.Println("[CallEventConsumer] 收到停止信号，消费退出")
			return
		}
	}
}

func (c *CallEventConsumer) Close() error {
	return c.group.Close()
}

func (c *CallEventConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *CallEventConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *CallEventConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.process(session.Context(), msg) {
				// session 结束（rebalance/关闭），位点未提交，由下一个持有者重新消费
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process 对可重试错误原地退避重试，同一分区后面的消息保持等待
// 返回 false 表示 ctx 已结束而消息仍未处理成功
func (c *CallEventConsumer) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	backoff := c.minBackoff
	if backoff <= 0 {
		backoff = defaultMinBackoff
	}
	maxBackoff := c.maxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	for attempt := 1; ; attempt++ {
		if c.handle(ctx, msg) {
			return true
		}
		log.Printf("[CallEventConsumer] 第 %d 次处理失败，%s 后重试: partition=%d, offset=%d",
			attempt, backoff, msg.Partition, msg.Offset)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// handle 返回 false 表示需要重试
func (c *CallEventConsumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	var ev model.CallEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Printf("[CallEventConsumer] 消息格式错误，跳过: partition=%d, offset=%d, err=%v", msg.Partition, msg.Offset, err)
		return true
	}

	err := c.handler.Dispatch(ctx, &ev)
	if err == nil {
		return true
	}
	if c.retryable != nil && c.retryable(err) {
		log.Printf("[CallEventConsumer] 处理失败，等待重试: type=%s, callID=%s, err=%v", ev.Type, ev.CallID, err)
		return false
	}
	log.Printf("[CallEventConsumer] 处理失败，跳过: type=%s, callID=%s, err=%v", ev.Type, ev.CallID, err)
	return true
}
