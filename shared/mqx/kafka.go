package mqx

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"facility-compliance-system/shared/config"
)

var (
	ErrNoBrokers  = errors.New("KAFKA_BROKERS is required")
	ErrNotStarted = errors.New("mqx: producer not initialized")
)

var tracer = otel.Tracer("mqx")

var _ propagation.TextMapCarrier = (*HeaderCarrier)(nil)

// HeaderCarrier lets the otel propagator read and write kafka message headers in place.
type HeaderCarrier struct {
	Headers *[]kafka.Header
}

func (c *HeaderCarrier) Get(key string) string {
	hs := *c.Headers
	for i := len(hs) - 1; i >= 0; i-- {
		if hs[i].Key == key {
			return string(hs[i].Value)
		}
	}
	return ""
}

func (c *HeaderCarrier) Set(key string, value string) {
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			return
		}
	}
	*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.Headers))
	for _, h := range *c.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg config.Config) (*Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, ErrNoBrokers
	}
	// Hashing on the aggregate id keeps one entity's events in order on one partition.
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            max(cfg.KafkaRetryMax, 1),
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           time.Duration(cfg.KafkaWriteMS) * time.Millisecond,
		AllowAutoTopicCreation: cfg.Env != "production",
		Transport:              &kafka.Transport{ClientID: cfg.KafkaClientID},
	}}, nil
}

// Publish writes one message and carries the caller's trace context in its headers.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.writer == nil {
		return ErrNotStarted
	}
	ctx, span := tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.Int("messaging.message.body.size", len(value)),
		),
	)
	defer span.End()

	msg := kafka.Message{Topic: topic, Key: key, Value: value, Headers: make([]kafka.Header, 0, len(headers)+2)}
	carrier := &HeaderCarrier{Headers: &msg.Headers}
	for k, v := range headers {
		carrier.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NewConsumer joins groupID, falling back to KAFKA_GROUP_ID.
func NewConsumer(cfg config.Config, topic string, groupID string) (*kafka.Reader, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, ErrNoBrokers
	}
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}
	if groupID == "" {
		return nil, errors.New("KAFKA_GROUP_ID is required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}), nil
}

// Headers flattens message headers; later duplicates win.
func Headers(msg kafka.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// ConsumerContext continues the producer's trace for a consumed message.
func ConsumerContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &HeaderCarrier{Headers: &msg.Headers})
}
