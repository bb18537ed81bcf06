package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/client/domain"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuthzSvc authorization.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	authzSvc authorization.Service
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("client.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		authzSvc: p.AuthzSvc,
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectClient, authorization.ActionClientCreate)
	if err != nil {
		return domain.Client{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return domain.Client{}, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	client := domain.Client{
		ID:         s.genID.Generate(),
		BusinessID: businessID,
		Name:       name,
		Email:      email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &client); err != nil {
		return domain.Client{}, err
	}

	s.log.Info("client created",
		zap.String("business_id", businessID.String()),
		zap.String("client_id", client.ID.String()),
	)
	return client, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetClientRequest) (domain.Client, error) {
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectClient, authorization.ActionClientView)
	if err != nil {
		return domain.Client{}, err
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Client{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, businessID, id)
	if err != nil {
		return domain.Client{}, err
	}
	if item == nil {
		return domain.Client{}, domain.ErrNotFound
	}

	return *item, nil
}
