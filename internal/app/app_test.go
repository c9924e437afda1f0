package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/config"
)

func newTestApp() *App {
	return &App{
		config:  &config.Config{Port: "0"},
		logger:  zap.NewNop(),
		catalog: catalog.New(catalog.Sample()),
	}
}

func TestRoutes_Health(t *testing.T) {
	mux := newTestApp().routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRoutes_Root(t *testing.T) {
	mux := newTestApp().routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mode: polling")
	assert.Contains(t, rec.Body.String(), "conferences: 5")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_WebhookRejectsBadRequests(t *testing.T) {
	mux := newTestApp().routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram-webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
