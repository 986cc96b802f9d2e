package jobs

import (
	"testing"
	"time"
)

func TestReminderKey(t *testing.T) {
	a := ReminderKey("appt-1", "2025-03-01T09:30:00Z", "email")
	b := ReminderKey("appt-1", "2025-03-01T09:30:00Z", "email")
	if a != b {
		t.Errorf("expected stable key, got %s and %s", a, b)
	}
	if a == ReminderKey("appt-1", "2025-03-01T09:30:00Z", "sms") {
		t.Error("expected channel to change the key")
	}
	if a == ReminderKey("appt-1", "2025-03-01T10:00:00Z", "email") {
		t.Error("expected remind_at to change the key")
	}
}

func TestNewWorkerDefaults(t *testing.T) {
	w := NewWorker(nil, nil, nil, nil, WorkerConfig{})
	if w.interval != 2*time.Second {
		t.Errorf("expected default interval 2s, got %v", w.interval)
	}
	if w.batchSize != 50 {
		t.Errorf("expected default batch size 50, got %d", w.batchSize)
	}
	if w.backoff != time.Minute {
		t.Errorf("expected default backoff 1m, got %v", w.backoff)
	}
}
