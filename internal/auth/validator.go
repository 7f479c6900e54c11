// Package auth resolves bearer tokens into connection identities.
//
// Tokens are compact HS256 JWTs issued by the account service; this core only
// validates them. Observer tokens are resolved against the resident store so
// the identity carries the resident's suburb as its region affinity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

var (
	// ErrMissingToken indicates no token was supplied with the handshake.
	ErrMissingToken = errors.New("missing token")
	// ErrMalformedToken indicates the token is not a parseable JWT.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidToken indicates the signature or expiry check failed.
	ErrInvalidToken = errors.New("expired or invalid token")
	// ErrSubjectNotFound indicates the token subject has no matching record.
	ErrSubjectNotFound = errors.New("subject not found")
)

// Claims is the JWT payload accepted by the validator.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Validator turns opaque bearer tokens into resolved identities.
type Validator struct {
	secret    []byte
	issuer    string
	leeway    time.Duration
	residents store.ResidentStore
	logger    *zap.Logger
}

// NewValidator creates a token validator backed by the resident store.
func NewValidator(secret, issuer string, leeway time.Duration, residents store.ResidentStore, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{
		secret:    []byte(secret),
		issuer:    issuer,
		leeway:    leeway,
		residents: residents,
		logger:    logger.With(zap.String("component", "auth")),
	}
}

// Resolve validates the token and returns the identity it represents.
//
// Reporter tokens (role claim "vehicle-reporter") resolve directly from the
// claims. Any other valid token is treated as an observer and looked up in
// the resident store so the identity carries the resident's suburb.
func (v *Validator) Resolve(ctx context.Context, token string) (models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithIssuer(v.issuer))
	if err != nil {
		v.logger.Warn("Token validation failed", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return models.Identity{}, ErrMalformedToken
		}
		return models.Identity{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return models.Identity{}, ErrInvalidToken
	}

	if models.Role(claims.Role) == models.RoleReporter {
		return models.Identity{Subject: subject, Role: models.RoleReporter}, nil
	}

	residentID, err := uuid.Parse(subject)
	if err != nil {
		return models.Identity{}, ErrSubjectNotFound
	}
	resident, err := v.residents.GetResident(ctx, residentID)
	if err != nil {
		if errors.Is(err, store.ErrResidentNotFound) {
			return models.Identity{}, ErrSubjectNotFound
		}
		return models.Identity{}, fmt.Errorf("failed to resolve subject: %w", err)
	}

	return models.Identity{
		Subject: resident.ID.String(),
		Role:    models.RoleObserver,
		Region:  resident.Suburb,
	}, nil
}
