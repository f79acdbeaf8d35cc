package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinicbook/backend/internal/domain"
	"clinicbook/backend/internal/store"
)

func TestPostgresIntegration_BookingLifecycle(t *testing.T) {
	_, repo := openIntegrationDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providerID := uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	clientA := uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	clientB := uuid.MustParse("00000000-0000-0000-0000-00000000c002")
	date := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)

	newBooking := func(clientID uuid.UUID, label string) domain.Appointment {
		return domain.Appointment{
			ClientID:        clientID,
			ProviderID:      providerID,
			Date:            date,
			Time:            label,
			DurationMinutes: 30,
			VisitMode:       domain.VisitInPerson,
			Category:        domain.CategoryInitial,
			Status:          domain.StatusPending,
		}
	}

	var first domain.Appointment
	err := repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		var err error
		first, err = tx.CreateAppointment(ctx, newBooking(clientA, "09:00"))
		return err
	})
	if err != nil {
		t.Fatalf("first booking error: %v", err)
	}
	if first.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	err = repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.CreateAppointment(ctx, newBooking(clientB, "09:00"))
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("double booking err = %v, want %v", err, store.ErrConflict)
	}

	// Cancelling releases the (provider, date, time) key for re-booking.
	err = repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, first.ID)
		if err != nil {
			return err
		}
		appt.Status = domain.StatusCancelled
		appt.CancelledBy = &clientA
		appt.CancellationReason = "schedule change"
		_, err = tx.UpdateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	err = repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.CreateAppointment(ctx, newBooking(clientB, "09:00"))
		return err
	})
	if err != nil {
		t.Fatalf("re-booking after cancel error: %v", err)
	}

	booked, err := repo.ListBookedAppointments(ctx, providerID, date)
	if err != nil {
		t.Fatalf("ListBookedAppointments error: %v", err)
	}
	if len(booked) != 1 || booked[0].ClientID != clientB {
		t.Fatalf("booked = %+v, want one booking for clientB", booked)
	}

	// Completion does not free the key; only cancellation does.
	err = repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		held, err := tx.FindBookedAppointment(ctx, providerID, date, "09:00")
		if err != nil {
			return err
		}
		held.Status = domain.StatusCompleted
		_, err = tx.UpdateAppointment(ctx, held)
		return err
	})
	if err != nil {
		t.Fatalf("complete error: %v", err)
	}

	err = repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		held, err := tx.FindBookedAppointment(ctx, providerID, date, "09:00")
		if err != nil {
			return err
		}
		if held.Status != domain.StatusCompleted {
			return fmt.Errorf("holder status = %s, want completed", held.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("holder lookup error: %v", err)
	}

	booked, err = repo.ListBookedAppointments(ctx, providerID, date)
	if err != nil {
		t.Fatalf("ListBookedAppointments error: %v", err)
	}
	if len(booked) != 1 || booked[0].Status != domain.StatusCompleted {
		t.Fatalf("booked = %+v, want the completed booking still listed", booked)
	}
}

func TestPostgresIntegration_SlotReserveReleaseDelete(t *testing.T) {
	_, repo := openIntegrationDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providerID := uuid.MustParse("00000000-0000-0000-0000-00000000a002")
	appointmentID := uuid.MustParse("00000000-0000-0000-0000-00000000b001")
	date := time.Date(2030, 6, 4, 0, 0, 0, 0, time.UTC)

	var slot domain.Slot
	err := repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
		var err error
		slot, err = tx.CreateSlot(ctx, domain.Slot{
			ProviderID:      providerID,
			Date:            date,
			Time:            "10:00",
			DurationMinutes: 30,
		})
		if err != nil {
			return err
		}

		_, err = tx.CreateSlot(ctx, domain.Slot{
			ProviderID:      providerID,
			Date:            date,
			Time:            "10:00",
			DurationMinutes: 30,
		})
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("duplicate slot err = %v, want %v", err, store.ErrConflict)
		}

		if err := tx.ReserveSlot(ctx, slot.ID, appointmentID); err != nil {
			return fmt.Errorf("reserve: %v", err)
		}
		if err := tx.ReserveSlot(ctx, slot.ID, appointmentID); !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("second reserve err = %v, want %v", err, store.ErrConflict)
		}
		if err := tx.DeleteSlot(ctx, slot.ID); !errors.Is(err, store.ErrSlotReserved) {
			return fmt.Errorf("delete reserved err = %v, want %v", err, store.ErrSlotReserved)
		}

		if err := tx.ReleaseSlot(ctx, slot.ID); err != nil {
			return fmt.Errorf("release: %v", err)
		}
		if err := tx.ReleaseSlot(ctx, slot.ID); err != nil {
			return fmt.Errorf("repeated release should be a no-op, got %v", err)
		}

		if err := tx.DeleteSlot(ctx, slot.ID); err != nil {
			return fmt.Errorf("delete free slot: %v", err)
		}
		if err := tx.ReleaseSlot(ctx, slot.ID); !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("release missing err = %v, want %v", err, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func TestPostgresIntegration_ConcurrentBookingOneWinner(t *testing.T) {
	_, repo := openIntegrationDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providerID := uuid.MustParse("00000000-0000-0000-0000-00000000a003")
	date := time.Date(2030, 6, 5, 0, 0, 0, 0, time.UTC)

	book := func(clientID uuid.UUID) error {
		return repo.InProviderDayTx(ctx, providerID, date, func(ctx context.Context, tx store.BookingTx) error {
			_, err := tx.CreateAppointment(ctx, domain.Appointment{
				ClientID:        clientID,
				ProviderID:      providerID,
				Date:            date,
				Time:            "11:00",
				DurationMinutes: 30,
				VisitMode:       domain.VisitRemoteCall,
				Category:        domain.CategoryFollowUp,
				Status:          domain.StatusPending,
			})
			return err
		})
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = book(uuid.New())
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d, want exactly one of each", successes, conflicts)
	}

	booked, err := repo.ListBookedAppointments(ctx, providerID, date)
	if err != nil {
		t.Fatalf("ListBookedAppointments error: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("len(booked) = %d, want 1", len(booked))
	}
}

// openIntegrationDB provisions a throwaway schema and returns a repo scoped
// to it. Skips unless CLINICBOOK_TEST_DATABASE_URL points at a live database.
func openIntegrationDB(t *testing.T) (*bun.DB, *BookingRepo) {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("CLINICBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINICBOOK_TEST_DATABASE_URL not set")
	}

	admin, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(admin)
	})

	schema := "clinicbook_test_" + randomHex(t, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	db, err := Open(withSearchPath(t, databaseURL, schema), PoolConfig{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open scoped error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations error: %v", err)
	}

	return db, NewBookingRepo(db)
}

// withSearchPath pins every connection in the pool to the test schema so
// concurrent transactions all see the same tables.
func withSearchPath(t *testing.T, databaseURL, schema string) string {
	t.Helper()

	u, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	q := u.Query()
	q.Set("options", "-csearch_path="+schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
