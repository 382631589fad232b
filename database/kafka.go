package database

import (
	"time"

	kafka "github.com/segmentio/kafka-go"

	"pushlytics/api/config"
	"pushlytics/api/logging"
)

// NewKafkaWriter returns a writer for analysis notifications, or nil when no
// brokers are configured. Writers are safe for concurrent use and dial lazily.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	logging.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher enabled")
	return w
}
