package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// NewGroup builds a consumer group for the payment events topic.
// Offsets start from the oldest unread message so a restart never
// drops a paid order that still needs an invoice.
func NewGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Net.DialTimeout = 5 * time.Second
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}
