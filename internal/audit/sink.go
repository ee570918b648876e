// Package audit provides an optional external fan-out for security-policy
// violations, mirroring every violation the gateway records locally onto a
// Kafka topic so a separate security-monitoring consumer can alert on them.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kafgate/kafgate/internal/policy"
)

// KafkaSink publishes policy.Violation records to a Kafka topic. It is
// optional: callers wire it into policy.Enforcer.SetSink only when a
// broker address is configured.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink builds a sink that writes to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
			Async:        true,
		},
	}
}

// Send implements the func(policy.Violation) signature policy.Enforcer.SetSink
// expects. Marshal/publish failures are swallowed — audit fan-out must never
// block or fail the request path that triggered the violation.
func (s *KafkaSink) Send(v policy.Violation) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(v.ChannelID),
		Value: payload,
		Time:  v.Ts,
	})
}

// Close flushes and closes the underlying Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
