package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vbonduro/unlabel/internal/domain"
)

var ErrNotAuthenticated = errors.New("not signed in")

// tokenRepository is the subset of store.CredentialStore that Manager requires.
type tokenRepository interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// authClient is the subset of backend.Client that Manager requires.
type authClient interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password, name string) (string, error)
}

type Manager struct {
	tokens tokenRepository
	client authClient
	logger *slog.Logger
}

func NewManager(tokens tokenRepository, client authClient, logger *slog.Logger) *Manager {
	return &Manager{tokens: tokens, client: client, logger: logger}
}

// Login signs in and persists the returned token.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	token, err := m.client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if err := m.tokens.Set(ctx, token); err != nil {
		return nil, err
	}

	subject, err := Subject(token)
	if err != nil {
		m.logger.Warn("token has no readable subject", "error", err)
	}
	m.logger.Info("signed in", "user_id", subject)
	return &domain.User{ID: subject, Email: email, Name: nameFromEmail(email)}, nil
}

// Register creates an account, signs in and persists the returned token.
func (m *Manager) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	token, err := m.client.Register(ctx, email, password, name)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if err := m.tokens.Set(ctx, token); err != nil {
		return nil, err
	}

	subject, err := Subject(token)
	if err != nil {
		m.logger.Warn("token has no readable subject", "error", err)
	}
	if name == "" {
		name = nameFromEmail(email)
	}
	return &domain.User{ID: subject, Email: email, Name: name}, nil
}

// Logout forgets the stored token.
func (m *Manager) Logout(ctx context.Context) error {
	return m.tokens.Clear(ctx)
}

// Current returns the user identified by the stored token, or
// ErrNotAuthenticated when there is none. Only the ID is known locally.
func (m *Manager) Current(ctx context.Context) (*domain.User, error) {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	subject, err := Subject(token)
	if err != nil {
		return nil, fmt.Errorf("stored token is unreadable: %w", err)
	}
	return &domain.User{ID: subject}, nil
}

// Token implements backend.TokenSource.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return m.tokens.Get(ctx)
}

// Subject decodes the token payload and returns its "sub" claim. The
// signature is not verified: the issuing service is the party that checks it.
func Subject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
