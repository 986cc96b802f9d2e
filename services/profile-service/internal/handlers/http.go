package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/carebook-app/carebook/services/profile-service/internal/storage"
)

type Handler struct {
	repo *storage.Repository
}

func New(repo *storage.Repository) *Handler {
	return &Handler{repo: repo}
}

func ownerIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Owner-Id"))
}

type profileResponse struct {
	OwnerID                string `json:"owner_id"`
	DisplayName            string `json:"display_name"`
	Timezone               string `json:"timezone"`
	WorkdayStartMinute     int    `json:"workday_start_minute"`
	WorkdayEndMinute       int    `json:"workday_end_minute"`
	SlotStepMinutes        int    `json:"slot_step_minutes"`
	ReminderOffsetsMinutes []int  `json:"reminder_offsets_minutes"`
	UpdatedAt              string `json:"updated_at"`
}

func toResponse(p storage.OwnerProfile) profileResponse {
	resp := profileResponse{
		OwnerID:                p.OwnerID,
		DisplayName:            p.DisplayName,
		Timezone:               p.Timezone,
		WorkdayStartMinute:     p.WorkdayStartMinute,
		WorkdayEndMinute:       p.WorkdayEndMinute,
		SlotStepMinutes:        p.SlotStepMinutes,
		ReminderOffsetsMinutes: p.OffsetsMins,
		UpdatedAt:              p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.ReminderOffsetsMinutes == nil {
		resp.ReminderOffsetsMinutes = []int{}
	}
	return resp
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromHeader(r)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	p, err := h.repo.GetOrCreateProfile(r.Context(), ownerID)
	if err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(p))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromHeader(r)
	if ownerID == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	var req struct {
		DisplayName            string `json:"display_name"`
		Timezone               string `json:"timezone"`
		WorkdayStartMinute     *int   `json:"workday_start_minute"`
		WorkdayEndMinute       *int   `json:"workday_end_minute"`
		SlotStepMinutes        *int   `json:"slot_step_minutes"`
		ReminderOffsetsMinutes []int  `json:"reminder_offsets_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	p := storage.OwnerProfile{
		OwnerID:            ownerID,
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Timezone:           strings.TrimSpace(req.Timezone),
		WorkdayStartMinute: storage.DefaultWorkdayStartMinute,
		WorkdayEndMinute:   storage.DefaultWorkdayEndMinute,
		SlotStepMinutes:    storage.DefaultSlotStepMinutes,
	}
	if p.Timezone == "" {
		p.Timezone = storage.DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	if req.WorkdayStartMinute != nil {
		p.WorkdayStartMinute = *req.WorkdayStartMinute
	}
	if req.WorkdayEndMinute != nil {
		p.WorkdayEndMinute = *req.WorkdayEndMinute
	}
	if p.WorkdayStartMinute < 0 || p.WorkdayEndMinute > 1440 || p.WorkdayStartMinute >= p.WorkdayEndMinute {
		http.Error(w, "invalid workday window", http.StatusBadRequest)
		return
	}
	if req.SlotStepMinutes != nil {
		p.SlotStepMinutes = *req.SlotStepMinutes
	}
	if p.SlotStepMinutes < 5 || p.SlotStepMinutes > 240 {
		http.Error(w, "slot_step_minutes must be between 5 and 240", http.StatusBadRequest)
		return
	}

	for _, v := range req.ReminderOffsetsMinutes {
		if v <= 0 || v > 30*24*60 {
			http.Error(w, "invalid reminder_offsets_minutes", http.StatusBadRequest)
			return
		}
		p.OffsetsMins = append(p.OffsetsMins, v)
	}

	if err := h.repo.UpdateProfile(r.Context(), p); err != nil {
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}

	saved, err := h.repo.GetOrCreateProfile(r.Context(), ownerID)
	if err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(saved))
}
