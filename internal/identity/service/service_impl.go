package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/smallbiznis/quoteflow/pkg/db/option"
	"github.com/smallbiznis/quoteflow/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	memberRepo *repository.Store[identitydomain.BusinessMember]
}

func NewService(p Params) identitydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("identity.service"),
		clock:      p.Clock,
		memberRepo: repository.NewStore[identitydomain.BusinessMember](p.DB),
	}
}

func (s *Service) ResolveToken(ctx context.Context, rawToken string) (identitydomain.Actor, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return identitydomain.Actor{}, identitydomain.ErrInvalidToken
	}

	hash := identitydomain.HashToken(rawToken)
	var record struct {
		UserID    snowflake.ID `gorm:"column:user_id"`
		TokenHash string       `gorm:"column:token_hash"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, token_hash
		 FROM access_tokens
		 WHERE token_hash = ?
		   AND revoked_at IS NULL
		   AND (expires_at IS NULL OR expires_at > ?)
		 LIMIT 1`,
		hash,
		s.clock.Now(),
	).Scan(&record).Error; err != nil {
		return identitydomain.Actor{}, err
	}

	if record.UserID == 0 || subtle.ConstantTimeCompare([]byte(record.TokenHash), []byte(hash)) != 1 {
		return identitydomain.Actor{}, identitydomain.ErrInvalidToken
	}

	return identitydomain.Actor{Type: identitydomain.ActorTypeUser, UserID: record.UserID}, nil
}

func (s *Service) Memberships(ctx context.Context, userID snowflake.ID) ([]identitydomain.BusinessMember, error) {
	items, err := s.memberRepo.Find(ctx, &identitydomain.BusinessMember{UserID: userID},
		option.SortBy("created_at", "asc"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]identitydomain.BusinessMember, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}
