package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// OrderStateChanged publishes the event keyed by order id, so every event of
// one order lands in the same partition in order.
func (p *Producer) OrderStateChanged(ctx context.Context, ev messages.OrderStateChanged) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}
	return p.Publish(ctx, messages.TopicOrderStateChanged, []byte(strconv.FormatInt(ev.OrderID, 10)), b)
}
