package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

var (
	ErrUnauthenticated = errors.New("caller is not authenticated")
	ErrForbidden       = errors.New("caller is not allowed to perform this action")
)

// Actor is the resolved caller identity every coordinator operation runs as.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

// Resolver turns transport credentials into an Actor. It is the boundary to
// the access-policy system; the scheduling core never inspects credentials.
type Resolver interface {
	ResolveCaller(ctx context.Context, callerID, role string) (Actor, error)
}

// GatewayResolver trusts identity headers injected by the fronting gateway,
// which terminates authentication before requests reach this service.
type GatewayResolver struct{}

func (GatewayResolver) ResolveCaller(ctx context.Context, callerID, role string) (Actor, error) {
	id, err := uuid.Parse(strings.TrimSpace(callerID))
	if err != nil {
		return Actor{}, ErrUnauthenticated
	}

	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleClient:
		return Actor{ID: id, Role: RoleClient}, nil
	case RoleProvider:
		return Actor{ID: id, Role: RoleProvider}, nil
	case RoleAdmin:
		return Actor{ID: id, Role: RoleAdmin}, nil
	}
	return Actor{}, ErrUnauthenticated
}

type contextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}
