// Package kafka publishes found opportunities to a Kafka topic so that
// downstream consumers can replay every scan.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DefaultTopic receives one message per opportunity.
const DefaultTopic = "hedgebot.opportunities"

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes opportunities keyed by event name, so every opportunity
// for one event lands on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Publisher with a batching writer.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(w, cfg.Topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.With(slog.String("component", "kafka_publisher")),
	}
}

// PublishOpportunities writes one message per opportunity in a single batch.
func (p *Publisher) PublishOpportunities(ctx context.Context, opps []domain.HedgeOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(opps))
	for _, o := range opps {
		value, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("kafka: marshal opportunity %s: %w", o.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.EventName),
			Value: value,
			Time:  o.FoundAt,
			Headers: []kafka.Header{
				{Key: "hedge_type", Value: []byte(o.Type)},
				{Key: "opportunity_id", Value: []byte(o.ID)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: publish %d opportunities to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.DebugContext(ctx, "opportunities published", slog.Int("count", len(msgs)))
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// EnsureTopic creates topic on the cluster controller. An existing topic is
// not an error.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: get controller: %w", err)
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(partitions, 1),
		ReplicationFactor: 1,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("kafka: create topic %s: %w", topic, err)
	}
	return nil
}
