package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"agentledger/internal/auth"
	"agentledger/internal/db"
	"agentledger/internal/store"
	"agentledger/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Admin roles checked by the HTTP layer. Super admins hold all of them.
const (
	RoleManageAgents       = "manage_agents"
	RoleApproveRequests    = "approve_requests"
	RoleManageProvisioning = "manage_provisioning"
	RoleViewReports        = "view_reports"
)

var ErrDuplicateAdmin = errors.New("admin username already taken")

func ValidAdminRole(role string) bool {
	switch role {
	case RoleManageAgents, RoleApproveRequests, RoleManageProvisioning, RoleViewReports:
		return true
	}
	return false
}

type AdminAccountStore interface {
	IsAdmin(ctx context.Context, adminID string) (bool, bool, error)
	HasAnyAdmin(ctx context.Context) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, admin store.Admin) error
	GrantRole(ctx context.Context, tx store.Execer, adminID, role string) error
}

type AdminService struct {
	txRunner db.TxRunner
	admins   AdminAccountStore
	audit    AuditLogger
	logger   *slog.Logger
}

func NewAdminService(txRunner db.TxRunner, admins AdminAccountStore, audit AuditLogger, logger *slog.Logger) *AdminService {
	return &AdminService{txRunner: txRunner, admins: admins, audit: audit, logger: logger}
}

// Bootstrap creates the first super admin when the admins table is empty.
// It is a no-op once any admin exists.
func (s *AdminService) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	exists, err := s.admins.HasAnyAdmin(ctx)
	if err != nil || exists {
		return false, err
	}
	if _, err := s.create(ctx, "", username, password, true); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap super admin created", "username", username)
	return true, nil
}

func (s *AdminService) CreateAdmin(ctx context.Context, actorID, username, password string) (store.Admin, error) {
	return s.create(ctx, actorID, username, password, false)
}

func (s *AdminService) create(ctx context.Context, actorID, username, password string, isSuper bool) (store.Admin, error) {
	username = strings.TrimSpace(username)
	if err := validator.ValidateHandle(username); err != nil {
		return store.Admin{}, err
	}
	if err := validator.ValidatePassword(password); err != nil {
		return store.Admin{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return store.Admin{}, err
	}
	admin := store.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		IsSuper:      isSuper,
	}
	if actorID != "" {
		admin.CreatedBy = &actorID
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.admins.CreateAdmin(ctx, tx, admin); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "admin.create", "admin", admin.ID,
			auditData(map[string]any{"username": username, "is_super": isSuper}))
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return store.Admin{}, ErrDuplicateAdmin
		}
		return store.Admin{}, err
	}
	return admin, nil
}

// GrantRole gives a regular admin one more role. Super admins need none.
func (s *AdminService) GrantRole(ctx context.Context, actorID, adminID, role string) error {
	if !ValidAdminRole(role) {
		return ErrInvalidInput
	}
	isAdmin, isSuper, err := s.admins.IsAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if !isAdmin || isSuper {
		return ErrInvalidInput
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.admins.GrantRole(ctx, tx, adminID, role); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "admin.grant_role", "admin_role", adminID,
			auditData(map[string]any{"role": role}))
	})
}
