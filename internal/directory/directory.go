// Package directory exposes the provider-directory boundary: who a provider
// is, their schedule configuration, and whether they currently accept
// bookings. Approval and login policy live behind this interface, not in the
// scheduling core.
package directory

import (
	"context"

	"github.com/google/uuid"

	"clinicbook/backend/internal/domain"
)

// Directory resolves providers. Absent providers fail with store.ErrNotFound.
type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (domain.Provider, error)
}
