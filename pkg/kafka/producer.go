// Package kafka wraps the confluent-kafka-go producer behind a small
// interface so callers can be tested with an in-memory fake.
package kafka

import (
	"time"
)

// Producer publishes messages to Kafka.
type Producer interface {
	// Produce enqueues a message and returns once it is accepted by the
	// local producer queue. Delivery is confirmed asynchronously.
	Produce(topic string, key []byte, value []byte) error

	// ProduceAsync enqueues a message and invokes callback with the
	// delivery outcome once the broker acknowledges or rejects it.
	ProduceAsync(topic string, key []byte, value []byte, callback func(error))

	// Flush blocks until all queued messages are delivered or timeout
	// elapses.
	Flush(timeout time.Duration) error

	// Close releases the underlying producer. It does not flush first;
	// call Flush beforehand to wait for queued messages.
	Close() error
}
