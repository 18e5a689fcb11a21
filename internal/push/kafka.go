package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"ordersync/internal/config"
	"ordersync/internal/order"
)

// KafkaSource tails an order event topic. No consumer group is used: every
// session reads the live tail and filters envelopes itself.
type KafkaSource struct {
	brokers []string
	topic   string
}

// NewKafkaSource creates a kafka source
func NewKafkaSource(cfg config.KafkaConfig) *KafkaSource {
	return &KafkaSource{
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
	}
}

// Name identifies the transport
func (s *KafkaSource) Name() string {
	return config.TransportKafka
}

// Stream polls the topic from its current end until a fetch fails
func (s *KafkaSource) Stream(ctx context.Context, actor order.Actor, h Handler) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.ClientID("ordersync-"+string(actor.Role)+"-"+actor.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka client: %w", err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("kafka ping: %w", err)
	}

	h.subscribed()

	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}

		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			if fetchErr == nil {
				fetchErr = fmt.Errorf("kafka fetch %s/%d: %w", topic, partition, err)
			}
		})
		if fetchErr != nil {
			return fetchErr
		}

		fetches.EachRecord(func(r *kgo.Record) {
			h.message(r.Value)
		})
	}
}
