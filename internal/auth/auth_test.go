package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5, "complaint-service")
	token, exp, err := tm.GenerateToken("u1", domain.UserRoleStaff)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, domain.UserRoleStaff, claims.Role)

	_, err = NewTokenManager("other", 5, "complaint-service").ParseToken(token)
	assert.Error(t, err)
	_, err = NewTokenManager("secret", 5, "someone-else").ParseToken(token)
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("short", bcrypt.MinCost)
	assert.True(t, apperrors.IsValidation(err))

	hash, err := HashPassword("long-enough", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "long-enough"))
	assert.Error(t, ComparePassword(hash, "wrong-password"))
}

func newProtectedApp(t *testing.T, guard fiber.Handler) (*fiber.App, *TokenManager, map[domain.UserRole]string) {
	t.Helper()
	store := memory.NewStore()
	tm := NewTokenManager("secret", 5, "")
	tokens := map[domain.UserRole]string{}
	for _, role := range []domain.UserRole{domain.UserRoleStudent, domain.UserRoleStaff, domain.UserRoleAdmin} {
		user := &domain.User{Email: string(role) + "@uni.edu", Role: role, Status: domain.UserStatusActive}
		require.NoError(t, store.Users().Create(context.Background(), user))
		token, _, err := tm.GenerateToken(user.ID, role)
		require.NoError(t, err)
		tokens[role] = token
	}

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
	}})
	mw := NewAuthMiddleware(tm, store.Users())
	app.Get("/private", mw.Handle, guard, func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(string(principal.Role()))
	})
	return app, tm, tokens
}

func TestMiddlewareAndRoleGuards(t *testing.T) {
	app, _, tokens := newProtectedApp(t, RequireHandler())

	tests := map[string]struct {
		header string
		status int
	}{
		"missing header":  {header: "", status: fiber.StatusUnauthorized},
		"malformed":       {header: "Token abc", status: fiber.StatusUnauthorized},
		"garbage token":   {header: "Bearer abc", status: fiber.StatusUnauthorized},
		"student refused": {header: "Bearer " + tokens[domain.UserRoleStudent], status: fiber.StatusForbidden},
		"staff admitted":  {header: "Bearer " + tokens[domain.UserRoleStaff], status: fiber.StatusOK},
		"admin admitted":  {header: "Bearer " + tokens[domain.UserRoleAdmin], status: fiber.StatusOK},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMiddleware_UnknownUser(t *testing.T) {
	app, tm, _ := newProtectedApp(t, RequireAdmin())
	token, _, err := tm.GenerateToken("999", domain.UserRoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
