package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"agentledger/internal/auth"
	"agentledger/internal/models"
	"agentledger/internal/store"
	"agentledger/internal/validator"
)

type AgentLookup interface {
	GetByPhone(ctx context.Context, phone string) (models.Agent, error)
}

type AdminLookup interface {
	GetByUsername(ctx context.Context, username string) (store.Admin, error)
}

type AuthService struct {
	agents   AgentLookup
	admins   AdminLookup
	secret   string
	tokenTTL time.Duration
}

func NewAuthService(agents AgentLookup, admins AdminLookup, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{agents: agents, admins: admins, secret: secret, tokenTTL: tokenTTL}
}

type Session struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	ExpiresIn int64  `json:"expires_in"`
}

// LoginAgent authenticates by phone number. Unknown phones and wrong
// passwords return the same error.
func (s *AuthService) LoginAgent(ctx context.Context, phone, password string) (Session, error) {
	agent, err := s.agents.GetByPhone(ctx, validator.NormalizePhone(phone))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !auth.CheckPassword(agent.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if agent.Status != models.AgentStatusActive {
		return Session{}, ErrAgentInactive
	}
	return s.issue(agent.ID, auth.RoleAgent)
}

func (s *AuthService) LoginAdmin(ctx context.Context, username, password string) (Session, error) {
	admin, err := s.admins.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !auth.CheckPassword(admin.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(admin.ID, auth.RoleAdmin)
}

func (s *AuthService) issue(userID, role string) (Session, error) {
	token, err := auth.GenerateToken(s.secret, userID, role, s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    userID,
		Role:      role,
		ExpiresIn: int64(s.tokenTTL.Seconds()),
	}, nil
}
