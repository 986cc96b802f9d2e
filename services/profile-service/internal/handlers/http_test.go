package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProfileRequiresOwnerIdentity(t *testing.T) {
	h := New(nil)

	rw := httptest.NewRecorder()
	h.GetProfile(rw, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without owner header, got %d", rw.Code)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	h := New(nil)

	cases := []struct {
		name string
		body string
	}{
		{"unknown timezone", `{"timezone":"Mars/Olympus"}`},
		{"inverted workday window", `{"workday_start_minute":1020,"workday_end_minute":540}`},
		{"slot step too small", `{"slot_step_minutes":1}`},
		{"negative reminder offset", `{"reminder_offsets_minutes":[-30]}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/v1/profile", strings.NewReader(tc.body))
		req.Header.Set("X-Owner-Id", "owner-1")
		rw := httptest.NewRecorder()
		h.UpdateProfile(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rw.Code)
		}
	}
}
