package authjwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumehq/plume/internal/types"
)

const testSecret = "test-secret"

func newAuthApp() (*fiber.App, *types.UserContext) {
	captured := &types.UserContext{}
	app := fiber.New()
	app.Use(New(Config{Secret: testSecret, ClaimKey: "claim", UserCtxName: types.UserCtxName}))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user, ok := c.Locals(types.UserCtxName).(types.UserContext)
		if !ok {
			return fiber.ErrInternalServerError
		}
		*captured = user
		return c.SendStatus(fiber.StatusOK)
	})
	return app, captured
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func request(t *testing.T, app *fiber.App, authorization string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuth_ValidToken(t *testing.T) {
	app, captured := newAuthApp()

	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
		"claim": map[string]interface{}{
			"user_id":      float64(7),
			"handle":       "alice",
			"display_name": "Alice",
		},
	})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(7), captured.UserID)
	assert.Equal(t, "alice", captured.Handle)
	assert.Equal(t, "Alice", captured.DisplayName)
}

func TestAuth_StringUserID(t *testing.T) {
	app, captured := newAuthApp()

	token := signToken(t, testSecret, jwt.MapClaims{
		"claim": map[string]interface{}{"user_id": "42", "handle": "bob"},
	})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(42), captured.UserID)
}

func TestAuth_MissingHeader(t *testing.T) {
	app, _ := newAuthApp()

	resp := request(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_NonBearerScheme(t *testing.T) {
	app, _ := newAuthApp()

	resp := request(t, app, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_WrongSecret(t *testing.T) {
	app, _ := newAuthApp()

	token := signToken(t, "other-secret", jwt.MapClaims{
		"claim": map[string]interface{}{"user_id": float64(7)},
	})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ExpiredToken(t *testing.T) {
	app, _ := newAuthApp()

	token := signToken(t, testSecret, jwt.MapClaims{
		"exp":   time.Now().Add(-time.Hour).Unix(),
		"claim": map[string]interface{}{"user_id": float64(7)},
	})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_MissingClaim(t *testing.T) {
	app, _ := newAuthApp()

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "7"})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_BadUserID(t *testing.T) {
	app, _ := newAuthApp()

	token := signToken(t, testSecret, jwt.MapClaims{
		"claim": map[string]interface{}{"user_id": "not-a-number"},
	})

	resp := request(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
