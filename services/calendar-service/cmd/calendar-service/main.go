package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carebook-app/carebook/libs/config"
	"github.com/carebook-app/carebook/libs/db"
	"github.com/carebook-app/carebook/libs/httpx"
	"github.com/carebook-app/carebook/libs/kafkax"
	"github.com/carebook-app/carebook/libs/metrics"
	otelx "github.com/carebook-app/carebook/libs/otel"
	"github.com/carebook-app/carebook/libs/runtime"
	"github.com/carebook-app/carebook/services/calendar-service/internal/availability"
	"github.com/carebook-app/carebook/services/calendar-service/internal/feed"
	"github.com/carebook-app/carebook/services/calendar-service/internal/handlers"
	"github.com/carebook-app/carebook/services/calendar-service/internal/outbox"
	"github.com/carebook-app/carebook/services/calendar-service/internal/policy"
	"github.com/carebook-app/carebook/services/calendar-service/internal/storage"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "calendar-service")
	port, err := config.Port("PORT", "8083")
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

	repo := storage.NewCalendarRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	calendarMetrics := metrics.NewCalendarMetrics(prometheus.DefaultRegisterer)

	fallback := policy.Profile{
		Timezone:        config.String("DEFAULT_TIMEZONE", "UTC"),
		Workday:         availability.DefaultWindow(),
		ReminderOffsets: parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", ""), logger),
	}
	policyProvider, err := policy.NewProfilePolicyProvider(logger, fallback, config.String("PROFILE_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("policy provider init failed; using static fallback", "err", err)
		policyProvider = policy.NewStaticProvider(fallback)
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	hub := feed.NewHub(repo, logger, calendarMetrics)
	feed.RunInvalidators(ctx, logger, hub, feed.ConsumerConfig{
		Brokers: config.String("KAFKA_BROKERS", ""),
		Group:   config.String("KAFKA_GROUP_ID", "calendar-service-feed"),
	})

	calendarHandler := handlers.NewCalendarHandler(repo, outboxRepo, hub, policyProvider, logger, calendarMetrics)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("GET /v1/slots", calendarHandler.Slots)
	mux.HandleFunc("POST /v1/appointments", calendarHandler.CreateAppointment)
	mux.HandleFunc("GET /v1/appointments", calendarHandler.ListAppointments)
	mux.HandleFunc("PATCH /v1/appointments/{id}", calendarHandler.UpdateAppointment)
	mux.HandleFunc("POST /v1/appointments/{id}/cancel", calendarHandler.CancelAppointment)
	mux.HandleFunc("POST /v1/events", calendarHandler.CreateEvent)
	mux.HandleFunc("GET /v1/events", calendarHandler.ListEvents)
	mux.HandleFunc("PATCH /v1/events/{id}", calendarHandler.UpdateEvent)
	mux.HandleFunc("POST /v1/events/{id}/complete", calendarHandler.CompleteEvent)
	mux.HandleFunc("POST /v1/events/{id}/cancel", calendarHandler.CancelEvent)
	mux.HandleFunc("DELETE /v1/events/{id}", calendarHandler.DeleteEvent)
	mux.HandleFunc("GET /v1/agenda", calendarHandler.Agenda)
	mux.HandleFunc("GET /v1/markers", calendarHandler.Markers)
	mux.HandleFunc("GET /v1/recurrence/describe", calendarHandler.DescribeRecurrence)
	mux.HandleFunc("GET /v1/calendar.ics", calendarHandler.ExportICS)
	mux.HandleFunc("POST /v1/calendar/import", calendarHandler.ImportICS)
	mux.HandleFunc("GET /v1/calendar/stream", calendarHandler.HandleStream)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "calendar")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
