package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/carebook-app/carebook/libs/config"
	"github.com/carebook-app/carebook/libs/db"
	"github.com/carebook-app/carebook/libs/httpx"
	"github.com/carebook-app/carebook/libs/kafkax"
	"github.com/carebook-app/carebook/libs/metrics"
	otelx "github.com/carebook-app/carebook/libs/otel"
	"github.com/carebook-app/carebook/libs/runtime"
	"github.com/carebook-app/carebook/services/analytics-service/internal/consumer"
	"github.com/carebook-app/carebook/services/analytics-service/internal/inbox"
	"github.com/carebook-app/carebook/services/analytics-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// calendarTopics are the change feeds folded into the daily activity
// counters. Topic names double as event types.
var calendarTopics = []string{
	"calendar.appointment.created.v1",
	"calendar.appointment.updated.v1",
	"calendar.appointment.cancelled.v1",
	"calendar.event.created.v1",
	"calendar.event.updated.v1",
	"calendar.event.completed.v1",
	"calendar.event.cancelled.v1",
	"calendar.event.deleted.v1",
}

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	activityRepo := storage.NewRepository(pool)
	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, "analytics")

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")

	handleCalendarChange := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			EventID       string `json:"event_id"`
			OwnerID       string `json:"owner_id"`
			Date          string `json:"date"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid change payload", "err", err)
			return nil
		}
		entityID := payload.AppointmentID
		if entityID == "" {
			entityID = payload.EventID
		}
		if entityID == "" || payload.OwnerID == "" || payload.Date == "" {
			logger.Error("missing change fields")
			return nil
		}
		if _, err := time.Parse("2006-01-02", payload.Date); err != nil {
			logger.Error("invalid date", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		applied, err := activityRepo.ApplyCalendarChange(ctx, storage.CalendarChange{
			EventID:   meta.EventID,
			EventType: meta.EventType,
			OwnerID:   payload.OwnerID,
			EntityID:  entityID,
			Day:       payload.Date,
		})
		if err != nil {
			logger.Error("failed to record calendar activity", "err", err)
			return err
		}
		if applied {
			logger.Info("calendar activity recorded", "event_type", meta.EventType, "owner_id", payload.OwnerID)
		}
		return nil
	}

	for _, topic := range calendarTopics {
		c := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handleCalendarChange)
		go c.Run(ctx)
	}

	sentConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "notification.sent.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			OwnerID       string `json:"owner_id"`
			Channel       string `json:"channel"`
			SentAt        string `json:"sent_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid sent payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.OwnerID == "" || payload.Channel == "" || payload.SentAt == "" {
			logger.Error("missing sent fields")
			return nil
		}
		sentAt, err := time.Parse(time.RFC3339, payload.SentAt)
		if err != nil {
			logger.Error("invalid sent_at", "err", err)
			return nil
		}

		if err := activityRepo.RecordNotification(ctx, storage.NotificationOutcome{
			AppointmentID: payload.AppointmentID,
			OwnerID:       payload.OwnerID,
			Channel:       payload.Channel,
			Status:        "sent",
			At:            sentAt,
		}); err != nil {
			logger.Error("failed to record notification metric", "err", err)
			return err
		}

		logger.Info("notification metric recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})
	go sentConsumer.Run(ctx)

	failedConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "notification.failed.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			OwnerID       string `json:"owner_id"`
			Channel       string `json:"channel"`
			ErrorReason   string `json:"error_reason"`
			FailedAt      string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid failed payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.OwnerID == "" || payload.Channel == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
			logger.Error("missing failed fields")
			return nil
		}
		failedAt, err := time.Parse(time.RFC3339, payload.FailedAt)
		if err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		if err := activityRepo.RecordNotification(ctx, storage.NotificationOutcome{
			AppointmentID: payload.AppointmentID,
			OwnerID:       payload.OwnerID,
			Channel:       payload.Channel,
			Status:        "failed",
			At:            failedAt,
		}); err != nil {
			logger.Error("failed to record notification failure", "err", err)
			return err
		}

		logger.Info("notification failure recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})
	go failedConsumer.Run(ctx)

	dlqConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "reminder.dlq.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			OwnerID       string `json:"owner_id"`
			Channel       string `json:"channel"`
			RemindAt      string `json:"remind_at"`
			ErrorReason   string `json:"error_reason"`
			FailedAt      string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid dlq payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.OwnerID == "" || payload.Channel == "" || payload.RemindAt == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
			logger.Error("missing dlq fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}
		failedAt, err := time.Parse(time.RFC3339, payload.FailedAt)
		if err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		if err := activityRepo.RecordReminderDLQ(ctx, storage.ReminderDLQ{
			AppointmentID: payload.AppointmentID,
			OwnerID:       payload.OwnerID,
			Channel:       payload.Channel,
			RemindAt:      remindAt,
			ErrorReason:   payload.ErrorReason,
			FailedAt:      failedAt,
		}); err != nil {
			logger.Error("failed to record dlq event", "err", err)
			return err
		}

		logger.Warn("reminder dead-lettered", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})
	go dlqConsumer.Run(ctx)

	auditConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "identity.audit.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing audit fields")
			return nil
		}
		createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
		if err != nil {
			logger.Error("invalid audit created_at", "err", err)
			return nil
		}

		if err := activityRepo.RecordAuditEvent(ctx, payload.EventType, payload.ActorID, payload.Metadata, createdAt); err != nil {
			logger.Error("failed to record audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})
	go auditConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("GET /v1/stats/{ownerID}", statsHandler(logger, activityRepo))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// statsHandler serves an owner's activity counters. The gateway injects
// X-Owner-Id from the verified token, so owners can only read their own.
func statsHandler(logger *slog.Logger, repo *storage.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.PathValue("ownerID")
		if ownerID == "" || ownerID != r.Header.Get("X-Owner-Id") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		since := time.Now().UTC().AddDate(0, 0, -statsWindowDays(r))
		stats, err := repo.OwnerStats(r.Context(), ownerID, since)
		if err != nil {
			logger.Error("stats query failed", "err", err)
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// statsWindowDays bounds the lookback window. Counters attribute to the
// entity's calendar date, so future booked days always show.
func statsWindowDays(r *http.Request) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 30
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return 30
	}
	if days > 365 {
		return 365
	}
	return days
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
