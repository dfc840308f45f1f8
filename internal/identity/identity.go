// Package identity signs users in and out and tells subscribers when a
// session's identity changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contentplanner/internal/model"
	"contentplanner/internal/repository"
	"contentplanner/pkg/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired session token")
	ErrSessionRevoked     = errors.New("session has been signed out")
	ErrWeakRegistration   = errors.New("email is required and password must be at least 6 characters")
)

// Identity is the signed-in user's stable handle.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Session is what sign-up and sign-in hand back to the caller.
type Session struct {
	ID        string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"user"`
}

// StateChange is delivered to OnStateChanged listeners. A nil Identity means
// the session signed out.
type StateChange struct {
	SessionID string
	Identity  *Identity
}

type Provider struct {
	users   repository.UserStore
	revoked Revocations
	secret  string
	ttl     time.Duration
	logger  *zap.Logger

	mu        sync.RWMutex
	listeners map[int]func(StateChange)
	nextID    int
}

func NewProvider(users repository.UserStore, revoked Revocations, secret string, ttl time.Duration, logger *zap.Logger) *Provider {
	return &Provider{
		users:     users,
		revoked:   revoked,
		secret:    secret,
		ttl:       ttl,
		logger:    logger,
		listeners: make(map[int]func(StateChange)),
	}
}

// Register creates an account and signs it in.
func (p *Provider) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(password) < 6 {
		return nil, ErrWeakRegistration
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{Email: email, PasswordHash: hash}
	if name := strings.TrimSpace(displayName); name != "" {
		u.DisplayName = &name
	}
	if err := p.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	p.logger.Info("User registered", zap.String("user_id", u.ID))
	return p.startSession(u)
}

// SignIn verifies credentials and issues a new session token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		p.logger.Info("Sign-in rejected", zap.String("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}

	p.logger.Info("User signed in", zap.String("user_id", u.ID))
	return p.startSession(u)
}

func (p *Provider) startSession(u *model.User) (*Session, error) {
	sessionID := uuid.NewString()
	token, err := util.GenerateJWT(u.ID, u.Email, sessionID, p.secret, p.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	id := identityOf(u)
	s := &Session{
		ID:        sessionID,
		Token:     token,
		ExpiresAt: time.Now().Add(p.ttl),
		Identity:  id,
	}
	p.emit(StateChange{SessionID: sessionID, Identity: &id})
	return s, nil
}

// Authenticate resolves a bearer token to its session id and identity.
func (p *Provider) Authenticate(ctx context.Context, token string) (string, *Identity, error) {
	claims, err := util.ParseJWT(token, p.secret)
	if err != nil {
		return "", nil, ErrInvalidToken
	}

	revoked, err := p.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Fail closed: a session we cannot check is not trusted.
		p.logger.Warn("Revocation check failed", zap.String("session_id", claims.ID), zap.Error(err))
		return "", nil, fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return "", nil, ErrSessionRevoked
	}

	u, err := p.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidToken
		}
		return "", nil, err
	}

	id := identityOf(u)
	return claims.ID, &id, nil
}

// SignOut revokes the session until its token would have expired anyway and
// notifies listeners.
func (p *Provider) SignOut(ctx context.Context, sessionID string) error {
	if err := p.revoked.Revoke(ctx, sessionID, p.ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	p.logger.Info("Session signed out", zap.String("session_id", sessionID))
	p.emit(StateChange{SessionID: sessionID})
	return nil
}

// OnStateChanged registers fn for sign-in and sign-out events. The returned
// func removes it.
func (p *Provider) OnStateChanged(fn func(StateChange)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) emit(change StateChange) {
	p.mu.RLock()
	fns := make([]func(StateChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

func identityOf(u *model.User) Identity {
	id := Identity{UID: u.ID, Email: u.Email}
	if u.DisplayName != nil {
		id.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		id.PhotoURL = *u.PhotoURL
	}
	return id
}
