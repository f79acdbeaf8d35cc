// Package booking is the scheduling core: it converts provider schedules into
// bookable times, reserves exactly one appointment per (provider, date, time),
// and drives the appointment lifecycle.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicbook/backend/internal/auth"
	"clinicbook/backend/internal/directory"
	"clinicbook/backend/internal/domain"
	redislock "clinicbook/backend/internal/redis"
	"clinicbook/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	ErrInvalidDate       = errors.New("date must not be in the past")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("appointment status does not allow this operation")
	ErrNotAccepting      = errors.New("provider is not accepting bookings")
)

type Service struct {
	repo   store.BookingRepository
	dir    directory.Directory
	locker redislock.Locker
}

func NewService(repo store.BookingRepository, dir directory.Directory, locker redislock.Locker) *Service {
	if locker == nil {
		locker = redislock.NoopLocker{}
	}
	return &Service{repo: repo, dir: dir, locker: locker}
}

type PublishInput struct {
	ProviderID uuid.UUID
	Date       time.Time
	Times      []string
}

type PublishResult struct {
	Created  []domain.Slot
	Rejected []string
}

// PublishAvailability inserts a slot row for every candidate time that is not
// already published. Times already taken are reported back, not treated as
// failures.
func (s *Service) PublishAvailability(ctx context.Context, actor auth.Actor, in PublishInput) (PublishResult, error) {
	if err := requireProviderSelf(actor, in.ProviderID); err != nil {
		return PublishResult{}, err
	}

	date := domain.Midnight(in.Date)
	if date.Before(today()) {
		return PublishResult{}, ErrInvalidDate
	}
	if len(in.Times) == 0 {
		return PublishResult{}, validationError("at least one time is required")
	}
	for _, label := range in.Times {
		if _, err := domain.ParseClock(label); err != nil {
			return PublishResult{}, validationError(err.Error())
		}
	}

	provider, err := s.dir.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return PublishResult{}, err
	}

	var out PublishResult
	err = s.repo.InProviderDayTx(ctx, in.ProviderID, date, func(ctx context.Context, tx store.BookingTx) error {
		for _, label := range in.Times {
			slot, err := tx.CreateSlot(ctx, domain.Slot{
				ProviderID:      in.ProviderID,
				Date:            date,
				Time:            label,
				DurationMinutes: provider.SlotMinutes,
			})
			if errors.Is(err, store.ErrConflict) {
				out.Rejected = append(out.Rejected, label)
				continue
			}
			if err != nil {
				return err
			}
			out.Created = append(out.Created, slot)
		}
		return nil
	})
	if err != nil {
		return PublishResult{}, err
	}
	return out, nil
}

// ListAvailability derives the provider's bookable times for a date: the slot
// grid from the schedule configuration minus times held by non-cancelled
// appointments. Nothing is cached; the result is recomputed per request.
func (s *Service) ListAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) ([]string, error) {
	day := domain.Midnight(date)
	if day.Before(today()) {
		return nil, ErrInvalidDate
	}

	provider, err := s.dir.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	grid, err := domain.GenerateSlots(provider.Schedule(), day)
	if err != nil {
		return nil, fmt.Errorf("provider schedule: %w", err)
	}
	if len(grid) == 0 {
		return []string{}, nil
	}

	booked, err := s.repo.ListBookedAppointments(ctx, providerID, day)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(booked))
	for _, appt := range booked {
		taken[appt.Time] = struct{}{}
	}

	out := make([]string, 0, len(grid))
	for _, label := range grid {
		if _, ok := taken[label]; ok {
			continue
		}
		out = append(out, label)
	}
	return out, nil
}

type BookInput struct {
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	Date       time.Time
	Time       string
	VisitMode  domain.VisitMode
	Category   domain.Category
	Notes      string
}

// Book creates a pending appointment directly on (provider, date, time). No
// slot row is required; exclusivity is held through the appointments table.
func (s *Service) Book(ctx context.Context, actor auth.Actor, in BookInput) (domain.Appointment, error) {
	clientID, err := resolveClient(actor, in.ClientID)
	if err != nil {
		return domain.Appointment{}, err
	}

	if !domain.ValidVisitMode(in.VisitMode) {
		return domain.Appointment{}, validationError("invalid visit mode")
	}
	if !domain.ValidCategory(in.Category) {
		return domain.Appointment{}, validationError("invalid category")
	}
	if _, err := domain.ParseClock(in.Time); err != nil {
		return domain.Appointment{}, validationError(err.Error())
	}

	date := domain.Midnight(in.Date)
	if date.Before(today()) {
		return domain.Appointment{}, ErrInvalidDate
	}

	provider, err := s.dir.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !provider.AcceptingBookings {
		return domain.Appointment{}, ErrNotAccepting
	}

	grid, err := domain.GenerateSlots(provider.Schedule(), date)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("provider schedule: %w", err)
	}
	if !containsLabel(grid, in.Time) {
		return domain.Appointment{}, validationError("time is outside the provider's schedule")
	}

	return s.reserve(ctx, domain.Appointment{
		ClientID:        clientID,
		ProviderID:      in.ProviderID,
		Date:            date,
		Time:            in.Time,
		DurationMinutes: provider.SlotMinutes,
		VisitMode:       in.VisitMode,
		Category:        in.Category,
		Status:          domain.StatusPending,
		Notes:           strings.TrimSpace(in.Notes),
	})
}

type BookFromSlotInput struct {
	ClientID  uuid.UUID
	SlotID    uuid.UUID
	VisitMode domain.VisitMode
	Category  domain.Category
	Notes     string
}

// BookFromSlot books against a published slot. It converges on the same
// reservation primitive as Book; the slot row only contributes the key and
// the duration.
func (s *Service) BookFromSlot(ctx context.Context, actor auth.Actor, in BookFromSlotInput) (domain.Appointment, error) {
	clientID, err := resolveClient(actor, in.ClientID)
	if err != nil {
		return domain.Appointment{}, err
	}

	if !domain.ValidVisitMode(in.VisitMode) {
		return domain.Appointment{}, validationError("invalid visit mode")
	}
	if !domain.ValidCategory(in.Category) {
		return domain.Appointment{}, validationError("invalid category")
	}

	slot, err := s.repo.GetSlot(ctx, in.SlotID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if slot.Reserved {
		return domain.Appointment{}, store.ErrConflict
	}
	if domain.Midnight(slot.Date).Before(today()) {
		return domain.Appointment{}, ErrInvalidDate
	}

	provider, err := s.dir.GetProvider(ctx, slot.ProviderID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !provider.AcceptingBookings {
		return domain.Appointment{}, ErrNotAccepting
	}

	return s.reserve(ctx, domain.Appointment{
		ClientID:        clientID,
		ProviderID:      slot.ProviderID,
		Date:            domain.Midnight(slot.Date),
		Time:            slot.Time,
		DurationMinutes: slot.DurationMinutes,
		VisitMode:       in.VisitMode,
		Category:        in.Category,
		Status:          domain.StatusPending,
		Notes:           strings.TrimSpace(in.Notes),
	})
}

// reserve is the single reserve-or-fail primitive both booking paths use.
// Under the slot lock and the provider-day transaction it rejects any
// non-cancelled holder of the key (completed appointments keep their time),
// re-checks any published slot row, inserts the appointment (the partial
// unique index rejects a concurrent winner), and binds the slot row when one
// exists. The transaction keeps appointment and slot consistent: either both
// are written or neither is.
func (s *Service) reserve(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment

	err := s.locker.WithSlotLock(ctx, slotLockKey(appt.ProviderID, appt.Date, appt.Time), func(ctx context.Context) error {
		return s.repo.InProviderDayTx(ctx, appt.ProviderID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
			if _, err := tx.FindBookedAppointment(ctx, appt.ProviderID, appt.Date, appt.Time); err == nil {
				return store.ErrConflict
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			slot, err := tx.FindSlotByKey(ctx, appt.ProviderID, appt.Date, appt.Time)
			haveSlot := err == nil
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if haveSlot && slot.Reserved {
				return store.ErrConflict
			}

			created, err := tx.CreateAppointment(ctx, appt)
			if err != nil {
				return err
			}
			if haveSlot {
				if err := tx.ReserveSlot(ctx, slot.ID, created.ID); err != nil {
					return err
				}
			}

			out = created
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// UpdateStatus drives provider-side lifecycle transitions (confirm,
// complete). Cancellation has its own operation because it releases capacity.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, newStatus domain.AppointmentStatus, notes *string) (domain.Appointment, error) {
	switch newStatus {
	case domain.StatusConfirmed, domain.StatusCompleted:
	case domain.StatusCancelled:
		return domain.Appointment{}, validationError("use the cancel operation to cancel an appointment")
	default:
		return domain.Appointment{}, validationError("unknown target status")
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !actor.Is(auth.RoleAdmin) && !(actor.Is(auth.RoleProvider) && actor.ID == appt.ProviderID) {
		return domain.Appointment{}, auth.ErrForbidden
	}

	var out domain.Appointment
	err = s.repo.InProviderDayTx(ctx, appt.ProviderID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
		current, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, newStatus) {
			return ErrInvalidTransition
		}

		current.Status = newStatus
		if notes != nil {
			current.Notes = strings.TrimSpace(*notes)
		}

		updated, err := tx.UpdateAppointment(ctx, current)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// Cancel moves a pending or confirmed appointment to the terminal cancelled
// status and releases any published slot it holds. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Appointment{}, validationError("cancellation reason is required")
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !actor.Is(auth.RoleAdmin) && !appt.IsParty(actor.ID) {
		return domain.Appointment{}, auth.ErrForbidden
	}

	var out domain.Appointment
	err = s.repo.InProviderDayTx(ctx, appt.ProviderID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
		current, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrInvalidState
		}

		cancelledBy := actor.ID
		current.Status = domain.StatusCancelled
		current.CancelledBy = &cancelledBy
		current.CancellationReason = reason

		updated, err := tx.UpdateAppointment(ctx, current)
		if err != nil {
			return err
		}

		// Direct-path appointments have no slot row; absence is fine.
		slot, err := tx.FindSlotByKey(ctx, current.ProviderID, current.Date, current.Time)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case slot.AppointmentID != nil && *slot.AppointmentID == current.ID:
			if err := tx.ReleaseSlot(ctx, slot.ID); err != nil {
				return err
			}
		}

		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// DeleteSlot removes an unreserved published slot.
func (s *Service) DeleteSlot(ctx context.Context, actor auth.Actor, providerID, slotID uuid.UUID) error {
	if err := requireProviderSelf(actor, providerID); err != nil {
		return err
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.ProviderID != providerID {
		return store.ErrNotFound
	}

	return s.repo.InProviderDayTx(ctx, slot.ProviderID, slot.Date, func(ctx context.Context, tx store.BookingTx) error {
		return tx.DeleteSlot(ctx, slotID)
	})
}

// GetAppointment returns an appointment to one of its parties.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (domain.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !actor.Is(auth.RoleAdmin) && !appt.IsParty(actor.ID) {
		return domain.Appointment{}, auth.ErrForbidden
	}
	return appt, nil
}

// ListAppointments returns the appointments a party is involved in, within a
// date window. Non-admin actors may only list their own.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, partyID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if partyID == uuid.Nil {
		partyID = actor.ID
	}
	if !actor.Is(auth.RoleAdmin) && partyID != actor.ID {
		return nil, auth.ErrForbidden
	}

	start := domain.Midnight(from)
	end := domain.Midnight(to)
	if end.Before(start) {
		return nil, validationError("window end must not be before window start")
	}

	return s.repo.ListAppointmentsForParty(ctx, partyID, start, end)
}

func resolveClient(actor auth.Actor, clientID uuid.UUID) (uuid.UUID, error) {
	switch actor.Role {
	case auth.RoleClient:
		if clientID != uuid.Nil && clientID != actor.ID {
			return uuid.Nil, auth.ErrForbidden
		}
		return actor.ID, nil
	case auth.RoleAdmin:
		if clientID == uuid.Nil {
			return uuid.Nil, validationError("client id is required")
		}
		return clientID, nil
	}
	return uuid.Nil, auth.ErrForbidden
}

func requireProviderSelf(actor auth.Actor, providerID uuid.UUID) error {
	if actor.Is(auth.RoleAdmin) {
		return nil
	}
	if actor.Is(auth.RoleProvider) && actor.ID == providerID {
		return nil
	}
	return auth.ErrForbidden
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func slotLockKey(providerID uuid.UUID, date time.Time, timeLabel string) string {
	return domain.ProviderDayKey(providerID, date) + ":" + timeLabel
}

func today() time.Time {
	return domain.Midnight(time.Now())
}
