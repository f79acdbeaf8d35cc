package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicbook/backend/internal/domain"
)

// BookingTx is the set of slot and appointment mutations available inside a
// provider-day transaction. Implementations hold the per-(provider, day)
// calendar lock for the whole callback, so check-then-create sequences run
// under mutual exclusion.
type BookingTx interface {
	// CreateAppointment inserts the appointment. A second active appointment
	// at the same (provider, date, time) fails with ErrConflict.
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// FindBookedAppointment returns the non-cancelled appointment holding
	// (provider, date, time), or ErrNotFound when the key is free.
	FindBookedAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, timeLabel string) (domain.Appointment, error)

	// CreateSlot inserts a slot row; a duplicate (provider, date, time) key
	// fails with ErrConflict.
	CreateSlot(ctx context.Context, slot domain.Slot) (domain.Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error)
	FindSlotByKey(ctx context.Context, providerID uuid.UUID, date time.Time, timeLabel string) (domain.Slot, error)
	// ReserveSlot binds the slot to an appointment; ErrConflict if already reserved.
	ReserveSlot(ctx context.Context, slotID, appointmentID uuid.UUID) error
	// ReleaseSlot clears the reservation. Releasing a free slot is a no-op.
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error
	// DeleteSlot removes an unreserved slot; ErrSlotReserved otherwise.
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
}

type BookingRepository interface {
	// InProviderDayTx runs fn inside a transaction holding the advisory lock
	// for the provider's calendar day.
	InProviderDayTx(ctx context.Context, providerID uuid.UUID, date time.Time, fn func(ctx context.Context, tx BookingTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListBookedAppointments returns the non-cancelled appointments holding
	// times on a provider's calendar day, ordered by time label. Completed
	// appointments keep their time; only cancelled rows drop out.
	ListBookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]domain.Appointment, error)
	// ListAppointmentsForParty returns appointments where partyID is the
	// client or the provider, within [from, to], ordered by date then time.
	ListAppointmentsForParty(ctx context.Context, partyID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
	GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error)
}
