package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/avast/retry-go/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `default:"academy.purchases" yaml:"topic"`
	ClientID string        `default:"academy-ledger" yaml:"client_id"`
	Attempts uint          `default:"3" yaml:"attempts"`
	Delay    time.Duration `default:"200ms" yaml:"delay"`
	MaxDelay time.Duration `default:"2s" yaml:"max_delay"`
}

// Kafka publishes events to a topic keyed by purchase id, so all events of a
// purchase land on the same partition in order.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

// NewKafka dials the brokers and returns a publisher.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return NewKafkaWithProducer(producer, cfg), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(producer sarama.SyncProducer, cfg KafkaConfig) *Kafka {
	k := &Kafka{
		producer: producer,
		topic:    cfg.Topic,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		maxDelay: cfg.MaxDelay,
	}
	if k.attempts == 0 {
		k.attempts = 1
	}
	return k
}

// Publish sends events, retrying only the messages the brokers rejected.
func (k *Kafka) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	pending := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		pending = append(pending, k.message(e))
	}

	return retry.Do(
		func() error {
			err := k.producer.SendMessages(pending)
			if err == nil {
				return nil
			}
			var perrs sarama.ProducerErrors
			if errors.As(err, &perrs) {
				failed := make([]*sarama.ProducerMessage, 0, len(perrs))
				for _, pe := range perrs {
					failed = append(failed, pe.Msg)
				}
				pending = failed
			}
			return errors.Wrapf(err, "send %d events", len(pending))
		},
		retry.Context(ctx),
		retry.Attempts(k.attempts),
		retry.Delay(k.delay),
		retry.MaxDelay(k.maxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
}

func (k *Kafka) message(e Event) *sarama.ProducerMessage {
	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)
	e.Encode(enc)
	value := append([]byte(nil), enc.Bytes()...)

	return &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.PurchaseID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
		Timestamp: e.OccurredAt,
	}
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	return k.producer.Close()
}
