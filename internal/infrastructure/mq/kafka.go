package mq

import (
	"fmt"
	"log"

	"voipbilling/internal/config"

	"github.com/IBM/sarama"
)

// Sender 消息发送，outbox 任务只依赖这个接口
type Sender interface {
	SendMessage(topic, key, value string) error
}

// KafkaSender 基于同步生产者，等待所有副本确认
type KafkaSender struct {
	producer sarama.SyncProducer
}

// NewKafkaSender 创建 Kafka 生产者
func NewKafkaSender(cfg *config.KafkaConfig) (*KafkaSender, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求
	kafkaConfig.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	log.Println("Kafka 生产者创建成功")
	return &KafkaSender{producer: producer}, nil
}

func (s *KafkaSender) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := s.producer.SendMessage(msg)
	return err
}

func (s *KafkaSender) Close() error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Close()
}

// LogSender 未启用 Kafka 时使用，只打印日志
type LogSender struct{}

func (LogSender) SendMessage(topic, key, value string) error {
	log.Printf("[LogSender] topic=%s, key=%s, value=%s", topic, key, value)
	return nil
}
