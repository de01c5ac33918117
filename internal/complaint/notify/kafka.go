package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	"civicdesk/pkg/platform/circuit"
)

// DefaultTopic carries StatusChanged records keyed by complaint id.
const DefaultTopic = "complaint-status-changed"

// Producer is the subset of *kgo.Client the notifier uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaNotifier publishes asynchronously. Delivery failures feed a circuit
// breaker; while it is open every event is also written to the fallback.
type KafkaNotifier struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	fallback *LogNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*KafkaNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *KafkaNotifier) {
		n.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *KafkaNotifier) {
		n.metrics = m
	}
}

func WithTopic(topic string) Option {
	return func(n *KafkaNotifier) {
		if topic != "" {
			n.topic = topic
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(n *KafkaNotifier) {
		n.breaker = b
	}
}

// NewKafkaClient builds a producer client for brokers.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func NewKafkaNotifier(producer Producer, opts ...Option) *KafkaNotifier {
	n := &KafkaNotifier{
		producer: producer,
		topic:    DefaultTopic,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.breaker == nil {
		n.breaker = circuit.New("kafka-notify")
	}
	n.fallback = NewLogNotifier(n.logger)
	return n
}

// NotifyStatusChanged hands ev to the producer and returns. The caller's
// cancellation does not abort delivery.
func (n *KafkaNotifier) NotifyStatusChanged(ctx context.Context, ev models.StatusChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	loggedFallback := n.breaker.IsOpen()
	if loggedFallback {
		_ = n.fallback.NotifyStatusChanged(ctx, ev)
	}

	rec := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(ev.ComplaintID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte("status_changed")},
			{Key: "to", Value: []byte(ev.To)},
		},
	}
	deliveryCtx := context.WithoutCancel(ctx)
	n.producer.Produce(deliveryCtx, rec, func(_ *kgo.Record, err error) {
		n.delivered(deliveryCtx, ev, loggedFallback, err)
	})
	return nil
}

func (n *KafkaNotifier) delivered(ctx context.Context, ev models.StatusChanged, loggedFallback bool, err error) {
	if err == nil {
		if _, change := n.breaker.RecordSuccess(); change.Closed && n.logger != nil {
			n.logger.InfoContext(ctx, "notification broker recovered", "breaker", n.breaker.Name())
		}
		return
	}

	if n.metrics != nil {
		n.metrics.IncrementNotifyFailed()
	}
	useFallback, change := n.breaker.RecordFailure()
	if n.logger != nil {
		n.logger.WarnContext(ctx, "status change delivery failed",
			"complaint_id", ev.ComplaintID.String(),
			"to", string(ev.To),
			"error", err)
		if change.Opened {
			n.logger.ErrorContext(ctx, "notification broker circuit opened", "breaker", n.breaker.Name())
		}
	}
	if useFallback && !loggedFallback {
		_ = n.fallback.NotifyStatusChanged(ctx, ev)
	}
}

// Close flushes buffered records then closes the producer.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	err := n.producer.Flush(ctx)
	n.producer.Close()
	if err != nil {
		return fmt.Errorf("flush notifications: %w", err)
	}
	return nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
