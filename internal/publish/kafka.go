// Package publish sends generated feed items to downstream consumers over Kafka and
// posts a digest of each feed to a Telegram chat.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
)

// Message is the value of one published record.
type Message struct {
	ClusterID   int           `json:"cluster_id"`
	Locale      string        `json:"locale"`
	Position    int           `json:"position"`
	GeneratedAt time.Time     `json:"generated_at"`
	Item        news.FeedItem `json:"item"`
}

// KafkaSink publishes feed items, one record per item keyed by cluster and locale.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewProducerConfig is the producer configuration used by NewKafkaSink.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink needs brokers and a topic")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	logger.Info("kafka producer connected", "brokers", strings.Join(cfg.Brokers, ","), "topic", cfg.Topic)
	return NewKafkaSinkWithProducer(producer, cfg.Topic), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, now: time.Now}
}

// Key is the record key of a cluster and locale, e.g. "12-it".
func Key(clusterID int, locale string) string {
	return fmt.Sprintf("%d-%s", clusterID, strings.ToLower(locale))
}

// Publish sends all items as one batch. An empty feed publishes nothing.
func (k *KafkaSink) Publish(ctx context.Context, clusterID int, locale string, items []news.FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := Key(clusterID, locale)
	at := k.now().UTC()
	msgs := make([]*sarama.ProducerMessage, 0, len(items))
	for i, item := range items {
		value, err := json.Marshal(Message{
			ClusterID:   clusterID,
			Locale:      strings.ToLower(locale),
			Position:    i,
			GeneratedAt: at,
			Item:        item,
		})
		if err != nil {
			return fmt.Errorf("marshal feed item %d: %w", i, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(value),
		})
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	logger.Info("feed published", "key", key, "topic", k.topic, "items", len(msgs))
	return nil
}

func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
