package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes driver location reports keyed by driver id, so
// reports for one driver stay ordered within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, r models.LocationReport) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.DriverID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// DecodeLocation parses one message from the location topic.
func DecodeLocation(m kafka.Message) (models.LocationReport, error) {
	var r models.LocationReport
	if err := json.Unmarshal(m.Value, &r); err != nil {
		return r, err
	}
	if r.DriverID == "" {
		r.DriverID = string(m.Key)
	}
	return r, nil
}
