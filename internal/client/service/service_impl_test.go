package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	"github.com/smallbiznis/quoteflow/internal/client/domain"
	"github.com/smallbiznis/quoteflow/internal/client/repository"
	"github.com/smallbiznis/quoteflow/internal/clock"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuthz struct {
	mock.Mock
}

func (m *mockAuthz) Authorize(ctx context.Context, actor string, businessID string, object string, action string) error {
	args := m.Called(ctx, actor, businessID, object, action)
	return args.Error(0)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.Client{}))
	return db
}

func newTestService(t *testing.T, authz authorization.Service) (*Service, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		AuthzSvc: authz,
	}).(*Service)
	return svc, db
}

func staffContext(businessID snowflake.ID) context.Context {
	ctx := identitydomain.WithActor(context.Background(), identitydomain.Actor{Type: identitydomain.ActorTypeUser, UserID: 11})
	return businesscontext.WithBusinessID(ctx, businessID)
}

func TestCreateAndGetClient(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, "user:11", "500", authorization.ObjectClient, mock.Anything).Return(nil)
	svc, _ := newTestService(t, authz)

	ctx := staffContext(500)
	created, err := svc.Create(ctx, domain.CreateClientRequest{Name: "  Acme Builders ", Email: "ops@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Builders", created.Name)
	assert.Equal(t, snowflake.ID(500), created.BusinessID)

	got, err := svc.GetByID(ctx, domain.GetClientRequest{ID: created.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "ops@acme.test", got.Email)
	authz.AssertExpectations(t)
}

func TestCreateClientValidatesInput(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc, _ := newTestService(t, authz)

	_, err := svc.Create(staffContext(500), domain.CreateClientRequest{Name: " ", Email: "ops@acme.test"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(staffContext(500), domain.CreateClientRequest{Name: "Acme", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestGetClientIsScopedToBusiness(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc, _ := newTestService(t, authz)

	created, err := svc.Create(staffContext(500), domain.CreateClientRequest{Name: "Acme", Email: "ops@acme.test"})
	require.NoError(t, err)

	_, err = svc.GetByID(staffContext(501), domain.GetClientRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(staffContext(500), domain.GetClientRequest{ID: "abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestCreateClientRequiresAuthorization(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(authorization.ErrForbidden)
	svc, db := newTestService(t, authz)

	_, err := svc.Create(staffContext(500), domain.CreateClientRequest{Name: "Acme", Email: "ops@acme.test"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.Create(context.Background(), domain.CreateClientRequest{Name: "Acme", Email: "ops@acme.test"})
	assert.ErrorIs(t, err, authorization.ErrInvalidActor)

	var count int64
	require.NoError(t, db.Model(&domain.Client{}).Count(&count).Error)
	assert.Zero(t, count)
}
