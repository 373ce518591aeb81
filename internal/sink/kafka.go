package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/obs"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka streams machine events to a topic as JSON keyed by machine id, so
// every event of one machine lands on the same partition.
type Kafka struct {
	w       MessageWriter
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

// NewKafka creates a sink writing to topic on brokers.
func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topic, log)
}

// NewKafkaWithWriter creates a sink on top of an existing writer.
func NewKafkaWithWriter(w MessageWriter, topic string, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	return &Kafka{
		w:       w,
		topic:   topic,
		timeout: 5 * time.Second,
		log:     log.With(zap.String("component", "kafka.producer"), zap.String("topic", topic)),
	}
}

// Publish writes one event.
func (k *Kafka) Publish(ctx context.Context, e event.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		k.log.Error("event marshal failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(e.MachineID), Value: value, Time: e.At}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		obs.Deliveries.WithLabelValues("kafka", "error").Inc()
		k.log.Error("kafka write failed", zap.String("machine_id", e.MachineID), zap.Error(err))
		return err
	}
	obs.Deliveries.WithLabelValues("kafka", "ok").Inc()
	k.log.Debug("event published",
		zap.String("kind", string(e.Kind)),
		zap.String("machine_id", e.MachineID))
	return nil
}

// Consume publishes events from a bus subscription until it is closed or ctx
// is done. Write failures are logged and the event is dropped.
func (k *Kafka) Consume(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = k.Publish(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (k *Kafka) Close() error { return k.w.Close() }
