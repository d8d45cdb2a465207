package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/aurum/internal/actorcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRequiresActor(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), ObjectLedger, ActionPay)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestAuthorizeStaff(t *testing.T) {
	svc := newTestService(t)
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "counter-1", Role: RoleStaff})

	assert.NoError(t, svc.Authorize(ctx, ObjectLedger, ActionPay))
	assert.NoError(t, svc.Authorize(ctx, ObjectBill, ActionCreate))
	assert.ErrorIs(t, svc.Authorize(ctx, ObjectLedger, ActionAdjust), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, ObjectRate, ActionCommit), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, ObjectBill, ActionDelete), ErrForbidden)
}

func TestAuthorizeAdminWildcard(t *testing.T) {
	svc := newTestService(t)
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "owner", Role: RoleAdmin})

	assert.NoError(t, svc.Authorize(ctx, ObjectLedger, ActionAdjust))
	assert.NoError(t, svc.Authorize(ctx, ObjectRate, ActionCommit))
	assert.NoError(t, svc.Authorize(ctx, ObjectBill, ActionDelete))
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	admin := actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "k", Role: RoleAdmin})
	require.NoError(t, svc.Authorize(admin, ObjectLedger, ActionAdjust))

	demoted := actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "k", Role: RoleStaff})
	assert.ErrorIs(t, svc.Authorize(demoted, ObjectLedger, ActionAdjust), ErrForbidden)
}
