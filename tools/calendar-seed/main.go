package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "gateway base url")
		email    = flag.String("email", getenv("SEED_EMAIL", "demo@carebook.local"), "demo owner email")
		password = flag.String("password", getenv("SEED_PASSWORD", "demo-password-1"), "demo owner password")
		name     = flag.String("name", getenv("SEED_NAME", "Demo Owner"), "demo owner display name")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	token, err := registerOrLogin(base, *email, *password, *name)
	if err != nil {
		fatal(err.Error())
	}

	today := time.Now()
	day := func(offset int) string { return today.AddDate(0, 0, offset).Format("2006-01-02") }

	appointments := []map[string]any{
		{
			"doctor_name":      "Dr. Amara Osei",
			"specialty":        "Cardiology",
			"date":             day(2),
			"time":             "09:30",
			"duration_minutes": 30,
			"location":         "Heart Clinic, Room 2",
			"reminder":         map[string]any{"offset_minutes": 60, "channel": "email"},
		},
		{
			"doctor_name":      "Dr. Lena Fischer",
			"specialty":        "Dermatology",
			"date":             day(4),
			"time":             "14:00",
			"duration_minutes": 20,
			"location":         "Skin Center",
			"recurrence":       map[string]any{"pattern": "monthly", "end_date": day(120)},
		},
	}
	// Stable idempotency keys make reruns replay the original rows
	// instead of duplicating them.
	for i, appt := range appointments {
		status, _, err := postJSON(base+"/v1/appointments", token, fmt.Sprintf("seed-appt-%d", i+1), appt)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("appointment %q status=%d\n", appt["doctor_name"], status)
	}

	events := []map[string]any{
		{
			"title":      "Take blood pressure medication",
			"category":   "health",
			"date":       day(1),
			"time":       "08:00",
			"recurrence": map[string]any{"pattern": "daily", "end_date": day(14)},
		},
		{
			"title":    "Physiotherapy exercises",
			"category": "health",
			"date":     day(3),
			"time":     "18:00",
			"location": "Home",
		},
		{
			"title":      "Insurance paperwork",
			"category":   "other",
			"date":       day(6),
			"is_all_day": true,
		},
	}
	for i, evt := range events {
		status, _, err := postJSON(base+"/v1/events", token, fmt.Sprintf("seed-event-%d", i+1), evt)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Printf("event %q status=%d\n", evt["title"], status)
	}

	fmt.Println("done")
}

// registerOrLogin creates the demo owner, falling back to login when the
// email is already registered so the seeder can run repeatedly.
func registerOrLogin(base, email, password, name string) (string, error) {
	status, body, err := postJSON(base+"/v1/auth/register", "", "", map[string]any{
		"email":        email,
		"password":     password,
		"display_name": name,
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusConflict {
		status, body, err = postJSON(base+"/v1/auth/login", "", "", map[string]any{
			"email":    email,
			"password": password,
		})
		if err != nil {
			return "", err
		}
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("auth failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var creds struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &creds); err != nil {
		return "", fmt.Errorf("invalid auth response: %w", err)
	}
	if creds.AccessToken == "" {
		return "", fmt.Errorf("auth response carried no access token")
	}
	return creds.AccessToken, nil
}

func postJSON(url, token, idempotencyKey string, v any) (int, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
