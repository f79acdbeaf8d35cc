package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"clinicbook/backend/internal/store"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name:       "matching constraint",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint},
			constraint: activeSlotConstraint,
			want:       true,
		},
		{
			name:       "other constraint",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: slotKeyConstraint},
			constraint: activeSlotConstraint,
			want:       false,
		},
		{
			name:       "any constraint",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "whatever"},
			constraint: "",
			want:       true,
		},
		{
			name:       "not a unique violation",
			err:        &pgconn.PgError{Code: "23503", ConstraintName: activeSlotConstraint},
			constraint: activeSlotConstraint,
			want:       false,
		},
		{
			name:       "wrapped pg error",
			err:        fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint}),
			constraint: activeSlotConstraint,
			want:       true,
		},
		{
			name:       "plain error",
			err:        errors.New("connection refused"),
			constraint: activeSlotConstraint,
			want:       false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("isUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMapScanError(t *testing.T) {
	if got := mapScanError(sql.ErrNoRows); !errors.Is(got, store.ErrNotFound) {
		t.Fatalf("mapScanError(sql.ErrNoRows) = %v, want store.ErrNotFound", got)
	}

	boom := errors.New("boom")
	if got := mapScanError(boom); !errors.Is(got, boom) {
		t.Fatalf("mapScanError passthrough = %v, want original error", got)
	}
}
