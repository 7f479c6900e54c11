package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	if claims.Issuer == "" {
		claims.Issuer = "refuse-tracker"
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newValidator(residents store.ResidentStore) *Validator {
	return NewValidator(testSecret, "refuse-tracker", 2*time.Second, residents, nil)
}

func TestResolve_Reporter(t *testing.T) {
	v := newValidator(store.NewMemoryStore())
	token := signToken(t, testSecret, Claims{UserID: "truck-7", Role: string(models.RoleReporter)})

	id, err := v.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleReporter, id.Role)
	assert.Equal(t, "truck-7", id.Subject)
	assert.False(t, id.HasRegion())
}

func TestResolve_ObserverWithRegion(t *testing.T) {
	s := store.NewMemoryStore()
	residentID := uuid.New()
	s.AddResident(models.Resident{ID: residentID, Email: "r@example.com", Suburb: "Avondale"})

	v := newValidator(s)
	token := signToken(t, testSecret, Claims{UserID: residentID.String()})

	id, err := v.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleObserver, id.Role)
	assert.Equal(t, "Avondale", id.Region)
}

func TestResolve_Rejections(t *testing.T) {
	s := store.NewMemoryStore()
	v := newValidator(s)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"missing", "", ErrMissingToken},
		{"whitespace only", "   ", ErrMissingToken},
		{"malformed", "not-a-jwt", ErrMalformedToken},
		{
			"wrong secret",
			signToken(t, "other-secret", Claims{UserID: uuid.NewString()}),
			ErrInvalidToken,
		},
		{
			"unknown subject",
			signToken(t, testSecret, Claims{UserID: uuid.NewString()}),
			ErrSubjectNotFound,
		},
		{
			"non-uuid observer subject",
			signToken(t, testSecret, Claims{UserID: "bogus"}),
			ErrSubjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Resolve(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	v := newValidator(store.NewMemoryStore())
	token := signToken(t, testSecret, Claims{
		UserID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "refuse-tracker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
