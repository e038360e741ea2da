package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Order lifecycle topics. Downstream consumers (analytics, seat maps
// on other nodes) key their projections off these.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
)

func AllTopics() []string {
	return []string{TopicOrderCreated, TopicOrderPaid, TopicOrderCancelled}
}

// EnsureTopicsExist creates the topics on the cluster controller,
// tolerating ones that already exist.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return err
	}

	// Give the cluster a moment to propagate metadata.
	time.Sleep(time.Second)
	return nil
}
