package nsq

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"
)

// Producer handles publishing messages to NSQ topics.
type Producer struct {
	producer *nsq.Producer
	logger   logrus.FieldLogger
}

// NewProducer creates a new NSQ producer and checks the daemon is reachable.
func NewProducer(address string, logger logrus.FieldLogger) (*Producer, error) {
	config := nsq.NewConfig()
	producer, err := nsq.NewProducer(address, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}

	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to ping NSQ daemon: %w", err)
	}

	return &Producer{producer: producer, logger: logger}, nil
}

// Publish sends a JSON encoded message to the specified topic.
func (p *Producer) Publish(topic string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.producer.Publish(topic, body); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.WithField("topic", topic).Debug("published message")
	return nil
}

// Stop gracefully stops the producer.
func (p *Producer) Stop() {
	p.producer.Stop()
}
