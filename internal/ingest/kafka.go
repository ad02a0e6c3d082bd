package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"hivetrust/internal/config"
)

const kafkaRetryDelay = 2 * time.Second

// StartKafka consumes measurement payloads (one JSON object or array per
// message) and writes them through the sink.
func StartKafka(ctx context.Context, cfg *config.Manager, sink *Sink, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, kafkaRetryDelay) {
					return
				}
				continue
			}
			consumeMessage(ctx, sink, m, Location(cfg.Get().Ingest.Timezone), logger)
		}
	}()
}

func consumeMessage(ctx context.Context, sink *Sink, m kafka.Message, loc *time.Location, logger *slog.Logger) {
	records, err := ParseJSONBytes(m.Value)
	if err != nil {
		if logger != nil {
			logger.Warn("kafka payload rejected", "partition", m.Partition, "offset", m.Offset, "err", err)
		}
		return
	}
	res, err := sink.Write(ctx, "kafka", records, loc)
	if err != nil {
		if logger != nil {
			logger.Error("kafka ingest store error", "offset", m.Offset, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Debug("kafka measurements stored", "accepted", res.Accepted(), "failed", res.Failed)
	}
}
