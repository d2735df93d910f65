package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/pkg/config"
)

type mockUserReader struct {
	users map[string]models.User
}

func (m *mockUserReader) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func newAuthFixture(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &mockUserReader{users: map[string]models.User{
		"checker@example.com": {
			ID: "user-1", Email: "checker@example.com", PasswordHash: string(hash),
			FullName: "Checker", Role: models.RoleChecker, Active: true,
		},
		"inactive@example.com": {
			ID: "user-2", Email: "inactive@example.com", PasswordHash: string(hash),
			FullName: "Former Staff", Role: models.RoleChecker, Active: false,
		},
	}}
	cfg := config.JWTConfig{Secret: "test_secret", Expiration: time.Hour, Issuer: "omr-grade-api"}
	return NewAuthService(users, cfg, zap.NewNop())
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "checker@example.com", Password: "s3cret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleChecker, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "checker@example.com", Password: "wrong",
	})
	require.Error(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email: "nobody@example.com", Password: "s3cret",
	})
	require.Error(t, err)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "inactive@example.com", Password: "s3cret",
	})
	require.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := newAuthFixture(t)
	other := NewAuthService(&mockUserReader{}, config.JWTConfig{Secret: "different", Expiration: time.Hour}, zap.NewNop())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "checker@example.com", Password: "s3cret",
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
