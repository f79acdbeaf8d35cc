package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type VisitMode string

const (
	VisitInPerson   VisitMode = "in-person"
	VisitRemoteCall VisitMode = "remote-call"
	VisitRemote     VisitMode = "remote-visit"
)

type Category string

const (
	CategoryInitial    Category = "initial"
	CategoryFollowUp   Category = "follow-up"
	CategoryAssessment Category = "assessment"
)

func ValidVisitMode(v VisitMode) bool {
	switch v {
	case VisitInPerson, VisitRemoteCall, VisitRemote:
		return true
	}
	return false
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryInitial, CategoryFollowUp, CategoryAssessment:
		return true
	}
	return false
}

// Appointment links a client and a provider to a (date, time) on the
// provider's calendar. Date is a UTC midnight; Time is the slot's HH:MM
// start label. Cancellation is a terminal status, never a deletion.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID         `bun:"id,pk,type:uuid"`
	ClientID           uuid.UUID         `bun:"client_id,notnull,type:uuid"`
	ProviderID         uuid.UUID         `bun:"provider_id,notnull,type:uuid"`
	Date               time.Time         `bun:"date,notnull"`
	Time               string            `bun:"time,notnull"`
	DurationMinutes    int               `bun:"duration_minutes,notnull"`
	VisitMode          VisitMode         `bun:"visit_mode,notnull"`
	Category           Category          `bun:"category,notnull"`
	Status             AppointmentStatus `bun:"status,notnull"`
	Notes              string            `bun:"notes"`
	CancelledBy        *uuid.UUID        `bun:"cancelled_by,type:uuid"`
	CancellationReason string            `bun:"cancellation_reason"`
	CreatedAt          time.Time         `bun:"created_at,notnull"`
	UpdatedAt          time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Active reports whether the appointment is still pending or confirmed, the
// only states cancellation may leave from.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// HoldsTime reports whether the appointment still occupies its (date, time)
// key. Completion does not free capacity; only cancellation does.
func (a *Appointment) HoldsTime() bool {
	return a.Status != StatusCancelled
}

// IsParty reports whether id is the client or the provider on the appointment.
func (a *Appointment) IsParty(id uuid.UUID) bool {
	return id == a.ClientID || id == a.ProviderID
}

// CanTransition encodes the lifecycle state machine:
// pending -> confirmed -> completed, with pending|confirmed -> cancelled.
// completed and cancelled are terminal.
func CanTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCompleted || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}
