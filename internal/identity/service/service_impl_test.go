package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/quoteflow/internal/clock"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupIdentity(t *testing.T) (identitydomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&identitydomain.AccessToken{}, &identitydomain.BusinessMember{}))

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: fake})
	return svc, db, fake
}

func TestResolveTokenMatchesHash(t *testing.T) {
	svc, db, fake := setupIdentity(t)
	expires := fake.Now().Add(time.Hour)
	require.NoError(t, db.Create(&identitydomain.AccessToken{
		ID:        1,
		UserID:    snowflake.ID(77),
		TokenHash: identitydomain.HashToken("tok_live"),
		ExpiresAt: &expires,
		CreatedAt: fake.Now(),
	}).Error)

	actor, err := svc.ResolveToken(context.Background(), "tok_live")
	require.NoError(t, err)
	assert.Equal(t, identitydomain.ActorTypeUser, actor.Type)
	assert.Equal(t, "user:77", actor.Subject())

	_, err = svc.ResolveToken(context.Background(), "tok_other")
	assert.ErrorIs(t, err, identitydomain.ErrInvalidToken)
}

func TestResolveTokenRejectsExpiredAndRevoked(t *testing.T) {
	svc, db, fake := setupIdentity(t)
	expired := fake.Now().Add(-time.Minute)
	revoked := fake.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&identitydomain.AccessToken{ID: 1, UserID: 5, TokenHash: identitydomain.HashToken("old"), ExpiresAt: &expired, CreatedAt: fake.Now()}).Error)
	require.NoError(t, db.Create(&identitydomain.AccessToken{ID: 2, UserID: 6, TokenHash: identitydomain.HashToken("gone"), RevokedAt: &revoked, CreatedAt: fake.Now()}).Error)

	_, err := svc.ResolveToken(context.Background(), "old")
	assert.ErrorIs(t, err, identitydomain.ErrInvalidToken)
	_, err = svc.ResolveToken(context.Background(), "gone")
	assert.ErrorIs(t, err, identitydomain.ErrInvalidToken)
	_, err = svc.ResolveToken(context.Background(), "  ")
	assert.ErrorIs(t, err, identitydomain.ErrInvalidToken)
}

func TestMembershipsListsBusinessesForUser(t *testing.T) {
	svc, db, fake := setupIdentity(t)
	require.NoError(t, db.Create(&identitydomain.BusinessMember{ID: 1, BusinessID: 100, UserID: 9, Role: "admin", CreatedAt: fake.Now()}).Error)
	require.NoError(t, db.Create(&identitydomain.BusinessMember{ID: 2, BusinessID: 200, UserID: 10, Role: "staff", CreatedAt: fake.Now()}).Error)

	members, err := svc.Memberships(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, snowflake.ID(100), members[0].BusinessID)
}
