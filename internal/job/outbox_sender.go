package job

import (
	"context"
	"log"
	"time"

	"voipbilling/internal/infrastructure/mq"
	"voipbilling/internal/metrics"
	"voipbilling/internal/model"
	"voipbilling/internal/repository"
)

// OutboxSender 轮询 PENDING 消息投递到 Kafka
// 入账事件和 unbilled 事件都与业务数据同事务写入 outbox，由这里保证至少投递一次
type OutboxSender struct {
	outboxRepo    repository.OutboxRepository
	sender        mq.Sender
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(outboxRepo repository.OutboxRepository, sender mq.Sender, interval time.Duration, batchSize, maxRetryCount int) *OutboxSender {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetryCount <= 0 {
		maxRetryCount = 5
	}
	return &OutboxSender{
		outboxRepo:    outboxRepo,
		sender:        sender,
		stopCh:        make(chan struct{}),
		interval:      interval,
		batchSize:     batchSize,
		maxRetryCount: maxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	m := metrics.GetMetrics()
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		m.OutboxSendTotal.WithLabelValues(msg.Topic, "sent").Inc()
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			// 下一轮会重复投递，消费方按 message key 去重
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return
	}

	m.OutboxSendTotal.WithLabelValues(msg.Topic, "failed").Inc()
	log.Printf("[OutboxSender] 消息发送失败: id=%d, topic=%s, err=%v", msg.ID, msg.Topic, err)

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] 标记消息失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d, key=%s", msg.ID, msg.MessageKey)
		}
	}
}
