package middlewares

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newApp() *fiber.App {
	app := fiber.New()
	SetupMiddlewares(app, SetupOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })
	app.Post("/api/webhooks/stripe", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestRequestID(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("no request id minted")
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestRecovery(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGlobalRateLimiter_SkipsWebhooks(t *testing.T) {
	app := newApp()
	for i := 0; i < 105; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("webhook %d limited: %d", i, resp.StatusCode)
		}
	}

	limited := false
	for i := 0; i < 105; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("public route never limited")
	}
}
