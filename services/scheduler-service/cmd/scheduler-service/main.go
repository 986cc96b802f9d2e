package main

import (
	"context"
	"encoding/json"
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
	"github.com/carebook-app/carebook/services/scheduler-service/internal/consumer"
	"github.com/carebook-app/carebook/services/scheduler-service/internal/inbox"
	"github.com/carebook-app/carebook/services/scheduler-service/internal/jobs"
	"github.com/carebook-app/carebook/services/scheduler-service/internal/outbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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
	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)
	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, "scheduler")

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	backoffSeconds, err := strconv.Atoi(config.String("SCHEDULER_BACKOFF_SECONDS", "60"))
	if err != nil || backoffSeconds <= 0 {
		backoffSeconds = 60
	}
	jobWorker := jobs.NewWorker(pool, jobRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   time.Duration(backoffSeconds) * time.Second,
	})
	go jobWorker.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "scheduler-service")

	type scheduleRequest struct {
		AppointmentID string         `json:"appointment_id"`
		OwnerID       string         `json:"owner_id"`
		Channel       string         `json:"channel"`
		RemindAt      string         `json:"remind_at"`
		TemplateData  map[string]any `json:"template_data"`
	}

	scheduleConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "reminder.schedule.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload scheduleRequest
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid schedule request", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.OwnerID == "" || payload.Channel == "" || payload.RemindAt == "" {
			logger.Error("missing schedule fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := jobRepo.Insert(ctx, tx, jobs.Job{
			IdempotencyKey: jobs.ReminderKey(payload.AppointmentID, payload.RemindAt, payload.Channel),
			AppointmentID:  payload.AppointmentID,
			OwnerID:        payload.OwnerID,
			Channel:        payload.Channel,
			RemindAt:       remindAt,
			TemplateData:   payload.TemplateData,
		}); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	go scheduleConsumer.Run(ctx)

	type cancelRequest struct {
		AppointmentID string `json:"appointment_id"`
		OwnerID       string `json:"owner_id"`
	}

	cancelConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "reminder.cancel.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload cancelRequest
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid cancel request", "err", err)
			return nil
		}
		if payload.AppointmentID == "" {
			logger.Error("missing appointment_id in cancel request")
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		dropped, err := jobRepo.CancelPending(ctx, tx, payload.AppointmentID)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		if dropped > 0 {
			logger.Info("pending reminders cancelled", "appointment_id", payload.AppointmentID, "count", dropped)
		}
		return nil
	})
	go cancelConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", metrics.Handler())
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
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
