package storage

import "testing"

func TestChangeVerb(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{"calendar.appointment.created.v1", "created"},
		{"calendar.appointment.cancelled.v1", "cancelled"},
		{"calendar.event.completed.v1", "completed"},
		{"calendar.event.deleted.v1", "deleted"},
	}
	for _, tc := range cases {
		if got := ChangeVerb(tc.eventType); got != tc.want {
			t.Errorf("ChangeVerb(%q) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}
