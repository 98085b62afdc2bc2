package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	for _, h := range handlers {
		app.Use(h)
	}
	return app
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestJWTAuth(t *testing.T) {
	const secret = "s3cret"
	app := newApp(JWTAuth(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("subject").(string))
	})

	now := time.Now()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"malformed", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, "other", jwt.MapClaims{"sub": "ops"}), fiber.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, secret, jwt.MapClaims{"sub": "ops", "exp": now.Add(-time.Hour).Unix()}), fiber.StatusUnauthorized},
		{"no subject", "Bearer " + sign(t, secret, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), fiber.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, secret, jwt.MapClaims{"sub": "ops", "exp": now.Add(time.Hour).Unix()}), fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestJWTAuthDisabledWithoutSecret(t *testing.T) {
	app := newApp(JWTAuth(""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestErrorHandlerStatus(t *testing.T) {
	app := newApp()
	app.Get("/app", func(c *fiber.Ctx) error { return apperr.NotFound("record") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrBadRequest })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path string
		want int
	}{
		{"/app", fiber.StatusNotFound},
		{"/fiber", fiber.StatusBadRequest},
		{"/plain", fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestRecover(t *testing.T) {
	app := newApp(Recover())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _, _ := rl.allow("1.2.3.4"); !ok {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if ok, _, _ := rl.allow("1.2.3.4"); ok {
		t.Error("third request allowed")
	}
	if ok, _, _ := rl.allow("5.6.7.8"); !ok {
		t.Error("other client rejected")
	}

	now = now.Add(time.Minute)
	if ok, remaining, _ := rl.allow("1.2.3.4"); !ok || remaining != 1 {
		t.Errorf("after window: ok = %v, remaining = %d", ok, remaining)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	if len(rl.requests) != 0 {
		t.Errorf("cleanup left %d windows", len(rl.requests))
	}
}

func TestRateLimiterHandler(t *testing.T) {
	app := newApp(NewRateLimiter(1, time.Minute).Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	first, _ := app.Test(httptest.NewRequest("GET", "/", nil))
	second, _ := app.Test(httptest.NewRequest("GET", "/", nil))
	if first.StatusCode != fiber.StatusOK || second.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("statuses = %d, %d", first.StatusCode, second.StatusCode)
	}
}
