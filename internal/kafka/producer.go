// Package kafka streams order lifecycle events. Publishing is
// best-effort from the booking flow's point of view: a broker outage
// never fails an order.
package kafka

import (
	"context"
	"encoding/json"

	"cinema-ticketing/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
}

// NewProducer returns a producer that routes each message by its
// per-message topic, so one writer serves the whole lifecycle.
func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// PublishOrderEvent streams the order snapshot to the given topic,
// keyed by order id so per-order events stay in partition order.
func (p *Producer) PublishOrderEvent(ctx context.Context, topic string, order *models.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(order.ID),
		Value: payload,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
