package main

import "testing"

func TestExpandChannels(t *testing.T) {
	cases := []struct {
		channel string
		want    int
	}{
		{"email", 1},
		{"sms", 1},
		{"notification", 1},
		{"all", 3},
		{"ALL", 3},
		{" email ", 1},
		{"pigeon", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := expandChannels(tc.channel)
		if len(got) != tc.want {
			t.Errorf("expandChannels(%q): expected %d channels, got %d", tc.channel, tc.want, len(got))
		}
	}
}

func TestExpandChannelsAllOrder(t *testing.T) {
	got := expandChannels("all")
	want := []string{"email", "sms", "notification"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestReminderText(t *testing.T) {
	payload := reminderPayload{
		AppointmentID: "appt-1",
		RemindAt:      "2025-03-01T09:30:00Z",
		TemplateData: map[string]any{
			"doctor_name": "Dr. Osei",
			"specialty":   "Cardiology",
			"date":        "2025-03-01",
			"time":        "10:30",
			"location":    "Clinic B",
		},
	}
	subject, body := reminderText(payload)
	if subject != "Cardiology appointment reminder" {
		t.Errorf("expected specialty subject, got %q", subject)
	}
	want := "Reminder: appointment with Dr. Osei on 2025-03-01 at 10:30. Location: Clinic B."
	if body != want {
		t.Errorf("expected %q, got %q", want, body)
	}
}

func TestReminderTextFallback(t *testing.T) {
	payload := reminderPayload{
		AppointmentID: "appt-1",
		RemindAt:      "2025-03-01T09:30:00Z",
		TemplateData:  map[string]any{},
	}
	subject, body := reminderText(payload)
	if subject != "Appointment reminder" {
		t.Errorf("expected generic subject, got %q", subject)
	}
	want := "Reminder for appointment appt-1 at 2025-03-01T09:30:00Z."
	if body != want {
		t.Errorf("expected %q, got %q", want, body)
	}
}
