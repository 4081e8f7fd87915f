package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
)

const testJWTSecret = "test_jwt_secret"

func seedUser(t *testing.T, repo repositories.UserRepository, email, password string, role models.Role) *models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	user := &models.User{
		Name:     "Test User",
		Email:    email,
		Password: string(hashed),
		Role:     role,
	}
	assert.NoError(t, repo.Create(user))
	return user
}

func TestAuthService_Login(t *testing.T) {
	repo := repositories.NewInMemoryUserRepository()
	authService := services.NewAuthService(repo, testJWTSecret)
	user := seedUser(t, repo, "manager@example.com", "password123", models.RoleManager)

	token, err := authService.Login("manager@example.com", "password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := authService.VerifyToken(token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleManager, claims.Role)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := repositories.NewInMemoryUserRepository()
	authService := services.NewAuthService(repo, testJWTSecret)
	seedUser(t, repo, "manager@example.com", "password123", models.RoleManager)

	token, err := authService.Login("manager@example.com", "wrong-password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	assert.Empty(t, token)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	repo := repositories.NewInMemoryUserRepository()
	authService := services.NewAuthService(repo, testJWTSecret)

	token, err := authService.Login("nobody@example.com", "password123")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	assert.Empty(t, token)
}

func TestAuthService_VerifyToken_RejectsTampered(t *testing.T) {
	repo := repositories.NewInMemoryUserRepository()
	authService := services.NewAuthService(repo, testJWTSecret)
	seedUser(t, repo, "admin@example.com", "password123", models.RoleAdmin)

	token, err := authService.Login("admin@example.com", "password123")
	assert.NoError(t, err)

	claims, err := authService.VerifyToken(token + "x")
	assert.Error(t, err)
	assert.Nil(t, claims)

	// A token signed with a different secret must not verify either.
	otherService := services.NewAuthService(repo, "another-secret")
	otherToken, err := otherService.Login("admin@example.com", "password123")
	assert.NoError(t, err)

	claims, err = authService.VerifyToken(otherToken)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
