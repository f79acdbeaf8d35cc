package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Slot is a published, discrete reservable unit on a provider's calendar.
// (ProviderID, Date, Time) is unique; AppointmentID is set iff Reserved.
// A slot row is optional: direct bookings hold the same (provider, date, time)
// exclusivity through the appointments table alone.
type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID      uuid.UUID  `bun:"provider_id,notnull,type:uuid"`
	Date            time.Time  `bun:"date,notnull"`
	Time            string     `bun:"time,notnull"`
	DurationMinutes int        `bun:"duration_minutes,notnull"`
	Reserved        bool       `bun:"reserved,notnull"`
	AppointmentID   *uuid.UUID `bun:"appointment_id,type:uuid"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}
