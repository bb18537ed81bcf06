package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const systemSubject = "system"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// subject is a resolved caller: the casbin subject, the role it holds in
// the business and the actor fields written to audit rows.
type subject struct {
	name      string
	role      string
	actorType string
	actorID   string
}

// NewEnforcer loads stored policies through the gorm adapter and makes sure
// every role in rolePolicies is present.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	rules := make([][]string, 0, 64)
	for role, capabilities := range rolePolicies {
		for _, c := range capabilities {
			rules = append(rules, []string{roleSubject(role), c.object, c.action})
		}
	}
	for _, rule := range rules {
		if _, err := enforcer.AddPolicy(rule); err != nil {
			return nil, err
		}
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, businessID string, object string, action string) error {
	actor, businessID = strings.TrimSpace(actor), strings.TrimSpace(businessID)
	object, action = strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case actor == "":
		return ErrInvalidActor
	case businessID == "":
		return ErrInvalidBusiness
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	sub, err := s.resolveSubject(ctx, actor, businessID)
	if err != nil {
		s.auditDenied(ctx, sub, businessID, object, action)
		return err
	}

	domain := "business:" + businessID
	if err := s.syncRole(sub, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(sub.name, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", sub.name),
			zap.String("role", sub.role),
			zap.String("action", action),
		)
		s.auditDenied(ctx, sub, businessID, object, action)
		return ErrForbidden
	}
	return nil
}

// resolveSubject looks the caller's role up in business_members. The system
// subject holds the system role everywhere.
func (s *ServiceImpl) resolveSubject(ctx context.Context, actor string, businessID string) (subject, error) {
	if actor == systemSubject {
		return subject{name: actor, role: roleSubject(RoleSystem), actorType: "system"}, nil
	}

	rawUserID, ok := strings.CutPrefix(actor, "user:")
	if !ok {
		return subject{}, ErrInvalidActor
	}
	userID, err := snowflake.ParseString(rawUserID)
	if err != nil || userID == 0 {
		return subject{}, ErrInvalidActor
	}
	sub := subject{name: actor, actorType: "user", actorID: userID.String()}

	business, err := snowflake.ParseString(businessID)
	if err != nil || business == 0 {
		return sub, ErrInvalidBusiness
	}

	var role string
	if err := s.db.WithContext(ctx).
		Table("business_members").
		Select("role").
		Where("business_id = ? AND user_id = ?", business, userID).
		Limit(1).
		Scan(&role).Error; err != nil {
		return sub, err
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return sub, ErrForbidden
	}
	sub.role = roleSubject(role)
	return sub, nil
}

// syncRole keeps one grouping rule per subject and business, so a changed
// membership role applies on the next check.
func (s *ServiceImpl) syncRole(sub subject, domain string) error {
	has, err := s.enforcer.HasGroupingPolicy(sub.name, sub.role, domain)
	if err != nil || has {
		return err
	}
	if _, err := s.enforcer.RemoveFilteredGroupingPolicy(0, sub.name, "", domain); err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(sub.name, sub.role, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, sub subject, businessID string, object string, action string) {
	if s.auditSvc == nil || sub.actorType == "" {
		return
	}
	business, err := snowflake.ParseString(businessID)
	if err != nil || business == 0 {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		BusinessID: business,
		ActorType:  sub.actorType,
		ActorID:    sub.actorID,
		Action:     "authorization.denied",
		TargetType: auditdomain.TargetAuthorization,
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
}
