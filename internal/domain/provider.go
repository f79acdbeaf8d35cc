package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider carries the directory view of a service provider: the schedule
// configuration slots are generated from and whether new bookings are
// currently accepted. Profile content lives elsewhere.
type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID                uuid.UUID `bun:"id,pk,type:uuid"`
	Name              string    `bun:"name,notnull"`
	WorkingStart      string    `bun:"working_start,notnull"`
	WorkingEnd        string    `bun:"working_end,notnull"`
	WorkingDays       []int16   `bun:"working_days,array,notnull"`
	SlotMinutes       int       `bun:"slot_minutes,notnull"`
	AcceptingBookings bool      `bun:"accepting_bookings,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`
}

func (p *Provider) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

func (p *Provider) Schedule() ScheduleConfig {
	return ScheduleConfig{
		WorkingStart: p.WorkingStart,
		WorkingEnd:   p.WorkingEnd,
		WorkingDays:  p.WorkingDays,
		SlotMinutes:  p.SlotMinutes,
	}
}
