package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"clinicbook/backend/internal/domain"
)

const dateLayout = "2006-01-02"

type publishRequest struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

type slotResponse struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Reserved        bool      `json:"reserved"`
}

type publishResponse struct {
	Created  []slotResponse `json:"created"`
	Rejected []string       `json:"rejected"`
}

type availabilityResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Times      []string  `json:"times"`
}

type bookRequest struct {
	ClientID   string `json:"client_id,omitempty"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	VisitMode  string `json:"visit_mode"`
	Category   string `json:"category"`
	Notes      string `json:"notes,omitempty"`
}

type bookFromSlotRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	SlotID    string `json:"slot_id"`
	VisitMode string `json:"visit_mode"`
	Category  string `json:"category"`
	Notes     string `json:"notes,omitempty"`
}

type statusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ClientID           uuid.UUID  `json:"client_id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	Date               string     `json:"date"`
	Time               string     `json:"time"`
	DurationMinutes    int        `json:"duration_minutes"`
	VisitMode          string     `json:"visit_mode"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	Notes              string     `json:"notes,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type appointmentListResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		ProviderID:         a.ProviderID,
		Date:               a.Date.Format(dateLayout),
		Time:               a.Time,
		DurationMinutes:    a.DurationMinutes,
		VisitMode:          string(a.VisitMode),
		Category:           string(a.Category),
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toSlotResponse(s domain.Slot) slotResponse {
	return slotResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Date:            s.Date.Format(dateLayout),
		Time:            s.Time,
		DurationMinutes: s.DurationMinutes,
		Reserved:        s.Reserved,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}
