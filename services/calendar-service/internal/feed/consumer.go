package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/carebook-app/carebook/libs/kafkax"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChangeTopics are the calendar change events that must refresh live
// subscriber snapshots.
var ChangeTopics = []string{
	"calendar.appointment.created.v1",
	"calendar.appointment.updated.v1",
	"calendar.appointment.cancelled.v1",
	"calendar.event.created.v1",
	"calendar.event.updated.v1",
	"calendar.event.completed.v1",
	"calendar.event.cancelled.v1",
	"calendar.event.deleted.v1",
}

type ConsumerConfig struct {
	Brokers string
	// Group is the base consumer group name. Each replica appends a
	// random suffix so every instance observes every change; snapshots
	// are full replacements, so reprocessing is harmless.
	Group string
}

// RunInvalidators consumes the calendar change topics and refreshes local
// subscribers for the affected owner. This is how a replica learns about
// writes that landed on its peers; writes handled locally invalidate the
// hub directly.
func RunInvalidators(ctx context.Context, logger *slog.Logger, hub *Hub, cfg ConsumerConfig) {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("feed invalidator disabled (no kafka brokers configured)")
		return
	}
	group := cfg.Group + "-" + uuid.NewString()

	for _, topic := range ChangeTopics {
		go runInvalidator(ctx, logger, hub, brokers, group, topic)
	}
}

func runInvalidator(ctx context.Context, logger *slog.Logger, hub *Hub, brokers []string, group, topic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: group,
		Topic:   topic,
		// Live sessions only need changes from now on; history is
		// already in the database.
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("kafka read error", "err", err, "topic", topic)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		var payload struct {
			OwnerID string `json:"owner_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.OwnerID == "" {
			logger.Error("change event missing owner_id", "topic", msg.Topic)
			span.End()
			continue
		}

		hub.Invalidate(ctxSpan, payload.OwnerID)
		span.End()
	}
}
