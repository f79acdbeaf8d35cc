package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicbook/backend/internal/domain"
	"clinicbook/backend/internal/store"
)

const (
	activeSlotConstraint = "appointments_active_slot_key"
	slotKeyConstraint    = "slots_provider_date_time_key"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

// InProviderDayTx serializes all mutations of one provider's calendar day.
// The advisory lock pairs with the partial unique index on active
// appointments: the lock orders concurrent transactions, the index rejects
// the loser if two instances ever race past it.
func (r *BookingRepo) InProviderDayTx(ctx context.Context, providerID uuid.UUID, date time.Time, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderDay(ctx, tx, providerID, date); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockProviderDay(ctx context.Context, tx bun.Tx, providerID uuid.UUID, date time.Time) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", domain.ProviderDayKey(providerID, date)).Exec(ctx)
	return err
}

func (r *BookingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapScanError(err)
	}
	return appt, nil
}

func (r *BookingRepo) ListBookedAppointments(ctx context.Context, providerID uuid.UUID, date time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Midnight(date)).
		Where("status != ?", domain.StatusCancelled).
		OrderExpr("time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListAppointmentsForParty(ctx context.Context, partyID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("client_id = ?", partyID).WhereOr("provider_id = ?", partyID)
		}).
		Where("date >= ?", domain.Midnight(from)).
		Where("date <= ?", domain.Midnight(to)).
		OrderExpr("date ASC, time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	var slot domain.Slot
	err := r.db.NewSelect().
		Model(&slot).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Slot{}, mapScanError(err)
	}
	return slot, nil
}

func (t bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, activeSlotConstraint) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (t bookingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := t.tx.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapScanError(err)
	}
	return appt, nil
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().Model(&m).WherePK().Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t bookingTx) FindBookedAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, timeLabel string) (domain.Appointment, error) {
	var appt domain.Appointment
	err := t.tx.NewSelect().
		Model(&appt).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Midnight(date)).
		Where("time = ?", timeLabel).
		Where("status != ?", domain.StatusCancelled).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapScanError(err)
	}
	return appt, nil
}

func (t bookingTx) CreateSlot(ctx context.Context, slot domain.Slot) (domain.Slot, error) {
	m := slot
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, slotKeyConstraint) {
			return domain.Slot{}, store.ErrConflict
		}
		return domain.Slot{}, err
	}
	return m, nil
}

func (t bookingTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	var slot domain.Slot
	err := t.tx.NewSelect().
		Model(&slot).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Slot{}, mapScanError(err)
	}
	return slot, nil
}

func (t bookingTx) FindSlotByKey(ctx context.Context, providerID uuid.UUID, date time.Time, timeLabel string) (domain.Slot, error) {
	var slot domain.Slot
	err := t.tx.NewSelect().
		Model(&slot).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Midnight(date)).
		Where("time = ?", timeLabel).
		Scan(ctx)
	if err != nil {
		return domain.Slot{}, mapScanError(err)
	}
	return slot, nil
}

func (t bookingTx) ReserveSlot(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	res, err := t.tx.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("reserved = TRUE").
		Set("appointment_id = ?", appointmentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Where("reserved = FALSE").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := t.GetSlot(ctx, slotID); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}

func (t bookingTx) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	res, err := t.tx.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("reserved = FALSE").
		Set("appointment_id = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t bookingTx) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.Slot)(nil)).
		Where("id = ?", slotID).
		Where("reserved = FALSE").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := t.GetSlot(ctx, slotID); err != nil {
			return err
		}
		return store.ErrSlotReserved
	}
	return nil
}

func mapScanError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
