package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// kafkaProducer implements Producer on top of confluent-kafka-go.
type kafkaProducer struct {
	producer *kafka.Producer
}

// NewProducer creates a Kafka producer from config.
func NewProducer(config *Config) (Producer, error) {
	conf := &kafka.ConfigMap{
		"bootstrap.servers":       strings.Join(config.Brokers, ","),
		"socket.keepalive.enable": true,
	}

	switch config.RequiredAcks {
	case "none":
		_ = conf.SetKey("acks", "0")
	case "local":
		_ = conf.SetKey("acks", "1")
	default:
		_ = conf.SetKey("acks", "all")
	}

	if config.Compression != "" && config.Compression != "none" {
		_ = conf.SetKey("compression.type", config.Compression)
	}
	if config.BatchSize > 0 {
		_ = conf.SetKey("batch.size", config.BatchSize)
	}
	if config.BatchTimeout > 0 {
		_ = conf.SetKey("linger.ms", int(config.BatchTimeout.Milliseconds()))
	}
	if config.RetryMax > 0 {
		_ = conf.SetKey("retries", config.RetryMax)
	}
	if config.RetryBackoff > 0 {
		_ = conf.SetKey("retry.backoff.ms", int(config.RetryBackoff.Milliseconds()))
	}

	producer, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	// Drain delivery reports for messages produced without a dedicated
	// delivery channel, so the event queue never fills up.
	go func() {
		for event := range producer.Events() {
			if msg, ok := event.(*kafka.Message); ok && msg.TopicPartition.Error != nil {
				fmt.Printf("kafka delivery failed: %v\n", msg.TopicPartition.Error)
			}
		}
	}()

	return &kafkaProducer{producer: producer}, nil
}

func message(topic string, key, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   key,
		Value: value,
	}
}

func (p *kafkaProducer) Produce(topic string, key []byte, value []byte) error {
	return p.producer.Produce(message(topic, key, value), nil)
}

func (p *kafkaProducer) ProduceAsync(topic string, key []byte, value []byte, callback func(error)) {
	deliveries := make(chan kafka.Event, 1)
	if err := p.producer.Produce(message(topic, key, value), deliveries); err != nil {
		callback(err)
		return
	}
	go func() {
		event := <-deliveries
		if msg, ok := event.(*kafka.Message); ok {
			callback(msg.TopicPartition.Error)
			return
		}
		callback(nil)
	}()
}

func (p *kafkaProducer) Flush(timeout time.Duration) error {
	if remaining := p.producer.Flush(int(timeout.Milliseconds())); remaining > 0 {
		return fmt.Errorf("flush kafka producer: %d messages still queued", remaining)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	p.producer.Close()
	return nil
}
