package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsWindowDays(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"", 30},
		{"days=7", 7},
		{"days=365", 365},
		{"days=400", 365},
		{"days=0", 30},
		{"days=-3", 30},
		{"days=soon", 30},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/v1/stats/owner-1?"+tc.query, nil)
		if got := statsWindowDays(r); got != tc.want {
			t.Errorf("statsWindowDays(%q) = %d, want %d", tc.query, got, tc.want)
		}
	}
}

func TestStatsHandlerRejectsOtherOwners(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stats/{ownerID}", statsHandler(logger, nil))

	r := httptest.NewRequest(http.MethodGet, "/v1/stats/owner-1", nil)
	r.Header.Set("X-Owner-Id", "owner-2")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched owner, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/stats/owner-1", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without X-Owner-Id, got %d", w.Code)
	}
}
