package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
)

func TestRequireResolvesActorAndBusiness(t *testing.T) {
	svc := newTestService(t)
	insertMember(t, svc.db, 1, 20, "staff")

	ctx := identitydomain.WithActor(context.Background(), identitydomain.Actor{
		Type:   identitydomain.ActorTypeUser,
		UserID: snowflake.ID(20),
	})
	ctx = businesscontext.WithBusinessID(ctx, snowflake.ID(1))

	actor, businessID, err := Require(ctx, svc, ObjectInvoice, ActionInvoiceCreate)
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if actor.UserID != 20 || businessID != 1 {
		t.Fatalf("unexpected actor %v business %v", actor.UserID, businessID)
	}
}

func TestRequireMissingContext(t *testing.T) {
	svc := newTestService(t)

	_, _, err := Require(context.Background(), svc, ObjectInvoice, ActionInvoiceView)
	if !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}

	ctx := identitydomain.WithActor(context.Background(), identitydomain.Actor{Type: identitydomain.ActorTypeSystem})
	_, _, err = Require(ctx, svc, ObjectInvoice, ActionInvoiceView)
	if !errors.Is(err, ErrInvalidBusiness) {
		t.Fatalf("expected invalid business, got %v", err)
	}
}

func TestRequireWithoutServiceIsForbidden(t *testing.T) {
	ctx := identitydomain.WithActor(context.Background(), identitydomain.Actor{Type: identitydomain.ActorTypeSystem})
	ctx = businesscontext.WithBusinessID(ctx, snowflake.ID(1))

	_, _, err := Require(ctx, nil, ObjectInvoice, ActionInvoiceView)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRequireDeniesClientInvoiceStatusChange(t *testing.T) {
	svc := newTestService(t)
	insertMember(t, svc.db, 1, 21, "client")

	ctx := identitydomain.WithActor(context.Background(), identitydomain.Actor{
		Type:   identitydomain.ActorTypeUser,
		UserID: snowflake.ID(21),
	})
	ctx = businesscontext.WithBusinessID(ctx, snowflake.ID(1))

	_, _, err := Require(ctx, svc, ObjectInvoice, ActionInvoiceStatus)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
