// Package admin authenticates the single administrator of the web panel.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

const (
	// CookieName carries the session token for browser clients.
	CookieName = "admin_session"

	ActionLogin = "admin_login"

	issuer = "web-bot-outloud"
	// defaultTTL bounds how long a leaked token stays usable. Logout revokes the token id
	// through Revocations for the rest of its lifetime.
	defaultTTL = 12 * time.Hour
)

// Claims are the session token contents. Subject is the admin actor id, ID the revocable session id.
type Claims struct {
	jwt.RegisteredClaims
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Authenticator interface {
	Login(ctx context.Context, password string) (Session, error)
	Verify(ctx context.Context, token string) (*Claims, error)
	Logout(ctx context.Context, token string) error
}

type Config struct {
	Password      string
	PasswordHash  string
	SessionSecret string
	SessionTTL    time.Duration
	ActorID       int64
	// Revoked defaults to an in-process list.
	Revoked Revocations
}

// PasswordAuthenticator checks a bcrypt hash and issues HS256 session tokens.
type PasswordAuthenticator struct {
	hash    []byte
	secret  []byte
	ttl     time.Duration
	actorID int64
	audit   repository.AuditRepository
	revoked Revocations
	now     func() time.Time
	log     *slog.Logger
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator uses cfg.PasswordHash when set, otherwise it hashes cfg.Password once.
func NewPasswordAuthenticator(cfg Config, audit repository.AuditRepository, log *slog.Logger) (*PasswordAuthenticator, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("admin session secret is empty")
	}

	hash := []byte(cfg.PasswordHash)
	if len(hash) == 0 {
		if cfg.Password == "" {
			return nil, errors.New("admin password is not configured")
		}
		generated, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = generated
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	revoked := cfg.Revoked
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}

	return &PasswordAuthenticator{
		hash:    hash,
		secret:  []byte(cfg.SessionSecret),
		ttl:     ttl,
		actorID: cfg.ActorID,
		audit:   audit,
		revoked: revoked,
		now:     time.Now,
		log:     log.With(slog.String("component", "admin_auth")),
	}, nil
}

func (a *PasswordAuthenticator) Login(ctx context.Context, password string) (Session, error) {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		a.log.WarnContext(ctx, "admin login rejected")
		return Session{}, apperrors.NewUnauthorizedError("invalid password")
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   fmt.Sprintf("%d", a.actorID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign admin session: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Append(ctx, domain.AuditLog{ActorID: a.actorID, Action: ActionLogin}); err != nil {
			a.log.WarnContext(ctx, "admin login not audited", slog.Any("error", err))
		}
	}

	return Session{Token: token, ExpiresAt: expires}, nil
}

// Verify accepts a token signed with the session secret that is neither expired nor logged out.
// A failing revocation lookup rejects the token.
func (a *PasswordAuthenticator) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := a.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := a.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		a.log.ErrorContext(ctx, "session revocation lookup failed", slog.Any("error", err))
		return nil, apperrors.NewDatabaseError(err)
	}
	if revoked {
		return nil, apperrors.NewUnauthorizedError("session ended")
	}

	return claims, nil
}

// Logout revokes token until its expiry. Invalid or already expired tokens are ignored.
func (a *PasswordAuthenticator) Logout(ctx context.Context, token string) error {
	claims, err := a.parse(token)
	if err != nil {
		return nil
	}

	if err := a.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	return nil
}

func (a *PasswordAuthenticator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, apperrors.NewUnauthorizedError("invalid session")
	}

	return claims, nil
}

// ActorID is the audit actor recorded for panel actions.
func (a *PasswordAuthenticator) ActorID() int64 {
	return a.actorID
}
