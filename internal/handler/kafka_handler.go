package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"caregiver-companion/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// kafkaProducer is the subset of *kafka.Producer the alert producer uses.
type kafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

type AlertProducer struct {
	producer kafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewAlertProducer(brokers, topic string, logger *zap.Logger) (*AlertProducer, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	go func() {
		for ev := range producer.Events() {
			if e, ok := ev.(kafka.Error); ok {
				logger.Warn("kafka producer error", zap.Error(e))
			}
		}
	}()
	return &AlertProducer{producer: producer, topic: topic, logger: logger}, nil
}

// PublishAlert produces the alert keyed by owner and waits for the delivery
// report.
func (p *AlertProducer) PublishAlert(ctx context.Context, alert models.EmergencyAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(alert.OwnerID),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce alert: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %v", ev)
		}
		if msg.TopicPartition.Error != nil {
			return msg.TopicPartition.Error
		}
		p.logger.Debug("alert produced",
			zap.String("alert_id", alert.ID),
			zap.String("topic", p.topic),
			zap.Int32("partition", msg.TopicPartition.Partition))
		return nil
	}
}

// Close flushes outstanding messages before closing.
func (p *AlertProducer) Close() {
	if left := p.producer.Flush(5000); left > 0 {
		p.logger.Warn("kafka producer closed with undelivered messages", zap.Int("count", left))
	}
	p.producer.Close()
}

type AckHandler interface {
	HandleAck(ctx context.Context, ack models.AlertAck)
}

// RouteAckMessage decodes caregiver acknowledgements from the ack topic.
func RouteAckMessage(ctx context.Context, acks AckHandler, logger *zap.Logger) func([]byte) {
	return func(value []byte) {
		var ack models.AlertAck
		if err := json.Unmarshal(value, &ack); err != nil {
			logger.Warn("error unmarshalling acknowledgement", zap.Error(err), zap.ByteString("raw", value))
			return
		}
		acks.HandleAck(ctx, ack)
	}
}

func RunConsumer(ctx context.Context, brokers, group, topic string, handlerFunc func([]byte), logger *zap.Logger) error {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          group,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return fmt.Errorf("create consumer for topic %s: %w", topic, err)
	}
	defer consumer.Close()

	if err := consumer.Subscribe(topic, nil); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", topic, err)
	}

	logger.Info("consumer started", zap.String("topic", topic), zap.String("group", group))

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping consumer", zap.String("topic", topic))
			return nil
		default:
			ev := consumer.Poll(100)
			if ev == nil {
				continue
			}
			switch e := ev.(type) {
			case *kafka.Message:
				handlerFunc(e.Value)
			case kafka.Error:
				logger.Warn("kafka error", zap.Error(e))
			}
		}
	}
}
