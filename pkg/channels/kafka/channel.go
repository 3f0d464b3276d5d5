// Package kafka provides the Kafka-backed publisher and subscriber pair
// behind the planbook event bus.
package kafka

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

const (
	// brokersEnvVar lists the bootstrap brokers, comma separated.
	brokersEnvVar = "KAFKA_BROKERS"

	// consumerGroupPrefix namespaces planbook consumer groups so a
	// deployment can share a cluster with other tenants.
	consumerGroupPrefix = "planbook-"

	defaultClientID = "planbook"
)

// Config describes the connection a channel pair opens.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// ReadFromOldest makes a fresh consumer group replay the topic from
	// the beginning instead of only seeing new plan events.
	ReadFromOldest bool
}

// ConfigFromEnv builds the Config for the named service from the
// environment. Every planbook process running under the same service name
// joins one consumer group and shares the partition load.
func ConfigFromEnv(serviceName string) (Config, error) {
	brokers := strings.Split(os.Getenv(brokersEnvVar), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return Config{}, errors.New(brokersEnvVar + " environment variable is not set or empty")
	}

	return Config{
		Brokers:        brokers,
		ConsumerGroup:  consumerGroupPrefix + serviceName,
		ClientID:       defaultClientID,
		ReadFromOldest: true,
	}, nil
}

// CreateChannel opens the publisher and subscriber for the named service,
// configured from the environment.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	cfg, err := ConfigFromEnv(serviceName)
	if err != nil {
		return nil, nil, err
	}

	return NewChannel(cfg, logger)
}

// NewChannel opens a publisher and subscriber pair over the configured
// brokers. The publisher waits for broker acknowledgement on every plan
// event; the event bus treats publish errors as delivery failures, so
// fire-and-forget producing would hide lost events.
func NewChannel(cfg Config, logger watermill.LoggerAdapter) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, errors.New("no Kafka brokers configured")
	}

	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.ClientID = cfg.ClientID

	if cfg.ReadFromOldest {
		subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         cfg.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.ClientID = cfg.ClientID
	publisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return publisher, subscriber, nil
}
