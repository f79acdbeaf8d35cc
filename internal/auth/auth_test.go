package auth

import (
	"context"
	"errors"
	"testing"
)

func TestGatewayResolver_ResolvesKnownRoles(t *testing.T) {
	r := GatewayResolver{}

	for _, role := range []string{"client", "provider", "admin", " Provider "} {
		actor, err := r.ResolveCaller(context.Background(), "2c1f64cb-7f3b-4f3f-9a64-5d8f6cbb0a01", role)
		if err != nil {
			t.Fatalf("ResolveCaller(%q) error: %v", role, err)
		}
		if actor.ID.String() != "2c1f64cb-7f3b-4f3f-9a64-5d8f6cbb0a01" {
			t.Fatalf("actor id = %s", actor.ID)
		}
	}
}

func TestGatewayResolver_RejectsBadCredentials(t *testing.T) {
	r := GatewayResolver{}

	if _, err := r.ResolveCaller(context.Background(), "not-a-uuid", "client"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
	if _, err := r.ResolveCaller(context.Background(), "2c1f64cb-7f3b-4f3f-9a64-5d8f6cbb0a01", "superuser"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	actor := Actor{Role: RoleAdmin}
	ctx := WithActor(context.Background(), actor)

	got, ok := ActorFromContext(ctx)
	if !ok || got.Role != RoleAdmin {
		t.Fatalf("ActorFromContext = %+v, %v", got, ok)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor on empty context")
	}
}
