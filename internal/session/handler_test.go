package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/campus-market/campus_market/internal/apperr"
	"github.com/campus-market/campus_market/internal/logging"
)

func failingApp(h *Handler, err error) *fiber.App {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return h.fail(c, err) })
	return app
}

func TestFailHidesUnclassifiedErrors(t *testing.T) {
	var logs bytes.Buffer
	h := NewHandler(nil, nil, logging.NewWithWriter("debug", &logs))
	cause := fmt.Errorf("credit provider: %w", errors.New(`ERROR: relation "users" does not exist (SQLSTATE 42P01)`))

	resp, err := failingApp(h, cause).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "relation") {
		t.Fatalf("storage detail leaked to caller: %s", body)
	}
	if string(body) != "internal error" {
		t.Fatalf("expected generic message, got %q", body)
	}
	if !strings.Contains(logs.String(), "relation") {
		t.Fatalf("expected the cause to be logged, got %q", logs.String())
	}
}

func TestFailKeepsClassifiedMessages(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	tests := []struct {
		err    error
		status int
	}{
		{apperr.Validation("title is required"), http.StatusBadRequest},
		{apperr.NotFound("listing", "abc"), http.StatusNotFound},
		{apperr.ErrAlreadyVerified, http.StatusConflict},
	}
	for _, tc := range tests {
		resp, err := failingApp(h, tc.err).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, resp.StatusCode)
		}
		if string(body) != tc.err.Error() {
			t.Fatalf("expected %q, got %q", tc.err.Error(), body)
		}
	}
}
