package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/loadway/Loadway/internal/pkg/upstream"
	"github.com/loadway/Loadway/internal/pkg/usercontext"
)

func authTestApp(platform *httptest.Server) *fiber.App {
	client := &upstream.Client{BaseURL: platform.URL, HTTPClient: http.DefaultClient}

	app := fiber.New()
	app.Get("/whoami", BearerAuthMiddleware(client), func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		return c.JSON(fiber.Map{"user_id": uc.UserID, "role": uc.Role})
	})
	return app
}

func TestBearerAuthMiddlewareMissingToken(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("platform must not be called without a token")
	}))
	defer platform.Close()

	app := authTestApp(platform)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	malformed := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	malformed.Header.Set(fiber.HeaderAuthorization, "Basic abc123")
	resp, err = app.Test(malformed)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerAuthMiddlewareInvalidToken(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer platform.Close()

	app := authTestApp(platform)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer expired-token")
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerAuthMiddlewareResolvesProfile(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-xyz" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"user_1","name":"Asha","role":"driver"}`))
	}))
	defer platform.Close()

	app := authTestApp(platform)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer token-xyz")
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAuthMiddlewareUpstreamDown(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer platform.Close()

	app := authTestApp(platform)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer some-token")
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestExtractBearerToken(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = extractBearerToken(c)
		return nil
	})

	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc123", want: "abc123"},
		{header: "bearer abc123", want: "abc123"},
		{header: "Bearer   abc123  ", want: "abc123"},
		{header: "Basic abc123", want: ""},
		{header: "Bearer", want: ""},
		{header: "", want: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tt.header)
		}
		_, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equalf(t, tt.want, got, "header %q", tt.header)
	}
}
