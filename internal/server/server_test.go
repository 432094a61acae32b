package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type routeHandler struct {
	echo *echo.Echo
}

func (h *routeHandler) Register(e *echo.Echo) {
	h.echo = e
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
}

func TestNewRegistersHandlers(t *testing.T) {
	t.Parallel()

	h := &routeHandler{}
	New(nil, ":0", []Handler{h})
	if h.echo == nil {
		t.Fatal("handler was never registered")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestNewSkipsNilHandlers(t *testing.T) {
	t.Parallel()

	h := &routeHandler{}
	srv := New(nil, "", []Handler{nil, h})
	if srv == nil {
		t.Fatal("expected server")
	}
	if h.echo == nil {
		t.Fatal("non-nil handler was skipped")
	}
}

func TestNewRecoversFromHandlerPanic(t *testing.T) {
	t.Parallel()

	h := &routeHandler{}
	New(nil, ":0", []Handler{h})
	h.echo.GET("/boom", func(c echo.Context) error {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500 from recover middleware", rec.Code)
	}
}
