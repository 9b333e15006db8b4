package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"location-service/algo"
	"location-service/config"
	"location-service/db"
	"location-service/handler"
	"location-service/model"
	"location-service/widget"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopGeocoder struct{}

func (noopGeocoder) Search(context.Context, string) ([]model.NamedPoint, error) { return nil, nil }

type noopRouter struct{}

func (noopRouter) Route(_ context.Context, from, to model.Coordinates) (*model.RoutePath, error) {
	return &model.RoutePath{DistanceMeters: 1, DurationSeconds: 1, Path: []model.Coordinates{from, to}}, nil
}

func newTestEngine(t *testing.T, authRequired bool) (*gin.Engine, *handler.Auth) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.Required = authRequired

	g := algo.DefaultGazetteer()
	agg := algo.NewAggregator(noopRouter{}, 2)
	sessions := widget.NewRegistry(time.Minute, func(id string) *widget.Session {
		return widget.NewSession(id, g, noopGeocoder{}, agg, widget.Options{})
	})
	t.Cleanup(sessions.Stop)

	api := &handler.API{Gazetteer: g, Geocoder: noopGeocoder{}, Aggregator: agg, Sessions: sessions}
	auth := handler.NewAuth(db.NewMemoryUserStore(), "secret", time.Hour)

	r := gin.New()
	setupRoutes(r, api, auth, cfg)
	return r, auth
}

func TestPing(t *testing.T) {
	r, _ := newTestEngine(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong","status":"ok"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestEngine(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/points", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRequiredGuardsMapRoutes(t *testing.T) {
	r, auth := newTestEngine(t, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/points", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := auth.IssueToken(&model.User{Username: "admin"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/points", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenRoutesWithoutAuth(t *testing.T) {
	r, _ := newTestEngine(t, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/points/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Legehar")
}

func TestAdminStatsRequiresAdminRole(t *testing.T) {
	r, auth := newTestEngine(t, false)

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("").Code)

	userToken, _, err := auth.IssueToken(&model.User{Username: "abebe", Roles: []string{"user"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(userToken).Code)

	adminToken, _, err := auth.IssueToken(&model.User{Username: "admin", Roles: []string{"admin"}})
	require.NoError(t, err)
	w := get(adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":0,"points":8}`, w.Body.String())
}
