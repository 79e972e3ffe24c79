package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"64K", 64 << 10},
		{"64KB", 64 << 10},
		{"1M", 1 << 20},
		{"1g", 1 << 30},
		{"2048", 2048},
		{"", 1 << 20},
		{"lots", 1 << 20},
		{"-5", 1 << 20},
	}

	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments/current/responses",
		strings.NewReader(`{"questionId":"pain_level","value":4}`))
	c := e.NewContext(req, httptest.NewRecorder())

	h := BodyLimit("1K")(func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if len(b) == 0 {
			t.Error("expected body to be readable")
		}
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2048)))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	h := BodyLimit("1K")(func(c echo.Context) error {
		called = true
		return nil
	})
	err := h(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
	if called {
		t.Error("handler should not run for an oversized body")
	}
}

func TestBodyLimit_EnforcedWhileReading(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2048)))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	h := BodyLimit("1K")(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})
	err := h(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 during read, got %v", err)
	}
}

func TestBodyLimit_SkipsEmptyBody(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	called := false
	h := BodyLimit("1")(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := h(c); err != nil || !called {
		t.Errorf("expected pass-through, err=%v called=%v", err, called)
	}
}
