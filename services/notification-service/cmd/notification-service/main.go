package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carebook-app/carebook/libs/config"
	"github.com/carebook-app/carebook/libs/db"
	"github.com/carebook-app/carebook/libs/httpx"
	"github.com/carebook-app/carebook/libs/kafkax"
	"github.com/carebook-app/carebook/libs/metrics"
	otelx "github.com/carebook-app/carebook/libs/otel"
	"github.com/carebook-app/carebook/libs/runtime"
	"github.com/carebook-app/carebook/services/notification-service/internal/consumer"
	"github.com/carebook-app/carebook/services/notification-service/internal/contacts"
	"github.com/carebook-app/carebook/services/notification-service/internal/email"
	"github.com/carebook-app/carebook/services/notification-service/internal/inbox"
	"github.com/carebook-app/carebook/services/notification-service/internal/outbox"
	"github.com/carebook-app/carebook/services/notification-service/internal/sms"
	"github.com/carebook-app/carebook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type reminderPayload struct {
	AppointmentID string         `json:"appointment_id"`
	OwnerID       string         `json:"owner_id"`
	Channel       string         `json:"channel"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

// expandChannels resolves the reminder channel into the concrete
// delivery channels. "all" fans out; unknown channels resolve to nil.
func expandChannels(channel string) []string {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case "email":
		return []string{"email"}
	case "sms":
		return []string{"sms"}
	case "notification":
		return []string{"notification"}
	case "all":
		return []string{"email", "sms", "notification"}
	}
	return nil
}

// reminderText renders the subject and body for an outgoing reminder
// from the template data captured at scheduling time.
func reminderText(payload reminderPayload) (string, string) {
	subject := "Appointment reminder"
	data := payload.TemplateData
	doctor, _ := data["doctor_name"].(string)
	date, _ := data["date"].(string)
	clock, _ := data["time"].(string)
	if doctor == "" || date == "" || clock == "" {
		return subject, fmt.Sprintf("Reminder for appointment %s at %s.", payload.AppointmentID, payload.RemindAt)
	}
	if specialty, ok := data["specialty"].(string); ok && specialty != "" {
		subject = specialty + " appointment reminder"
	}
	body := fmt.Sprintf("Reminder: appointment with %s on %s at %s.", doctor, date, clock)
	if location, ok := data["location"].(string); ok && location != "" {
		body += " Location: " + location + "."
	}
	return subject, body
}

func writeOutboxSent(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, payload reminderPayload, channel string, providerID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if strings.TrimSpace(providerID) == "" {
		providerID = "unknown"
	}
	eventPayload, err := json.Marshal(map[string]any{
		"appointment_id": payload.AppointmentID,
		"owner_id":       payload.OwnerID,
		"channel":        channel,
		"provider_id":    providerID,
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.AppointmentID,
		EventType:     "notification.sent.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func writeOutboxFailed(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, payload reminderPayload, channel string, reason string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventPayload, err := json.Marshal(map[string]any{
		"appointment_id": payload.AppointmentID,
		"owner_id":       payload.OwnerID,
		"channel":        channel,
		"error_reason":   reason,
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.AppointmentID,
		EventType:     "notification.failed.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	contactsRepo := contacts.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, "notify")
	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@carebook.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)
	emailProviderID := "smtp"

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	case "noop":
		smsSender = sms.NewNoopSender()
	default:
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	failSuffix := config.String("NOTIFICATION_FAIL_SUFFIX", "")

	type ownerRegistered struct {
		OwnerID     string `json:"owner_id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}

	contactConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "identity.owner.registered.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload ownerRegistered
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid owner registration payload", "err", err)
			return nil
		}
		if payload.OwnerID == "" || payload.Email == "" {
			logger.Error("missing owner contact fields")
			return nil
		}
		return contactsRepo.Upsert(ctx, contacts.Contact{
			OwnerID:     payload.OwnerID,
			Email:       payload.Email,
			DisplayName: payload.DisplayName,
		})
	})
	go contactConsumer.Run(ctx)

	deliver := func(ctx context.Context, payload reminderPayload, channel string, contact contacts.Contact, haveContact bool) error {
		status := "sent"
		failureReason := ""
		recipient := ""
		providerID := ""
		subject, body := reminderText(payload)

		switch channel {
		case "email":
			recipient = contact.Email
			switch {
			case !haveContact || recipient == "":
				status = "failed"
				failureReason = "no contact on file for owner"
			case failSuffix != "" && strings.HasSuffix(recipient, failSuffix):
				status = "failed"
				failureReason = "simulated failure"
			default:
				if err := emailSender.Send(recipient, subject, body); err != nil {
					status = "failed"
					failureReason = err.Error()
					logger.Error("email send failed", "err", err, "owner_id", payload.OwnerID)
				} else {
					providerID = emailProviderID
				}
			}
		case "sms":
			// The webhook bridge maps the owner to a device/number.
			recipient = payload.OwnerID
			if err := smsSender.Send(ctx, recipient, body); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("sms send failed", "err", err, "owner_id", payload.OwnerID)
			} else {
				providerID = smsSender.ProviderID()
			}
		case "notification":
			// In-app delivery is out of scope; the row below is what the
			// app surfaces. Acknowledge and move on.
			status = "acknowledged"
			recipient = payload.OwnerID
			providerID = "in-app"
		}

		if err := notificationsRepo.Insert(ctx, storage.Notification{
			AppointmentID: payload.AppointmentID,
			OwnerID:       payload.OwnerID,
			Channel:       channel,
			Recipient:     recipient,
			Payload:       payload.TemplateData,
			Status:        status,
		}); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}
		deliveryMetrics.ObserveDelivery(channel, status)

		if status == "failed" {
			if err := writeOutboxFailed(ctx, pool, outboxRepo, payload, channel, failureReason); err != nil {
				logger.Error("failed to enqueue notification.failed", "err", err)
				return err
			}
		} else {
			if err := writeOutboxSent(ctx, pool, outboxRepo, payload, channel, providerID); err != nil {
				logger.Error("failed to enqueue notification.sent", "err", err)
				return err
			}
		}

		logger.Info("reminder processed", "appointment_id", payload.AppointmentID, "channel", channel, "status", status)
		return nil
	}

	dueConsumer := consumer.New(logger, inboxRepo, consumerMetrics, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   "reminder.due.v1",
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload reminderPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.OwnerID == "" || payload.Channel == "" || payload.RemindAt == "" {
			logger.Error("missing reminder fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.RemindAt); err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		channels := expandChannels(payload.Channel)
		if channels == nil {
			logger.Error("unsupported channel", "channel", payload.Channel)
			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: payload.AppointmentID,
				OwnerID:       payload.OwnerID,
				Channel:       payload.Channel,
				Payload:       payload.TemplateData,
				Status:        "failed",
			}); err != nil {
				return err
			}
			deliveryMetrics.ObserveDelivery(payload.Channel, "failed")
			return writeOutboxFailed(ctx, pool, outboxRepo, payload, payload.Channel, "unsupported channel: "+payload.Channel)
		}

		contact, err := contactsRepo.GetByOwner(ctx, payload.OwnerID)
		haveContact := err == nil
		if err != nil && !contacts.IsNotFound(err) {
			return err
		}

		for _, channel := range channels {
			if err := deliver(ctx, payload, channel, contact, haveContact); err != nil {
				return err
			}
		}
		return nil
	})
	go dueConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", metrics.Handler())
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
