package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"littletrack/internal/models/clanalytics"
	"littletrack/internal/models/clconfig"
	"littletrack/internal/models/cltracking"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============= Setup =============

type client struct {
	router  *gin.Engine
	cookies map[string]*http.Cookie
}

func (cl *client) do(method, path string, body any) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		cl.cookies[ck.Name] = ck
	}
	return rec
}

func setupTestApp(t *testing.T) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	conf := clconfig.DefaultConfig()
	conf.Database.Path = filepath.Join(dir, "littletrack.db")
	conf.Logger.Level = "error"
	conf.Session.Secret = "test-secret"
	conf.User = clconfig.UserConfig{Login: "admin", Pass: "test-password"}
	conf.Tracking.Pageviews = true

	configFile = filepath.Join(dir, "littletrack.yaml")
	require.NoError(t, clconfig.WriteConfigYaml(configFile, conf))
	configuration = conf

	ctx := context.Background()
	require.NoError(t, initDatabase(ctx))
	require.NoError(t, initTracking(ctx))

	r := newServer()
	setMiddleware(r)
	setRoutes(r)

	return &client{router: r, cookies: map[string]*http.Cookie{}}
}

func allVisitors(t *testing.T) []cltracking.Visitor {
	t.Helper()
	var visitors []cltracking.Visitor
	require.NoError(t, db.Order("id").Find(&visitors).Error)
	return visitors
}

// ============= Tests =============

func TestInitDatabaseHashesPassword(t *testing.T) {
	setupTestApp(t)

	assert.Empty(t, configuration.User.Pass)
	assert.NotEmpty(t, configuration.User.Hash)

	saved, err := clconfig.LoadConfig(configFile)
	require.NoError(t, err)
	assert.Empty(t, saved.User.Pass)
	assert.Equal(t, configuration.User.Hash, saved.User.Hash)
}

func TestHealth(t *testing.T) {
	cl := setupTestApp(t)

	rec := cl.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestVisitorJourney(t *testing.T) {
	cl := setupTestApp(t)

	// anonymous visit
	rec := cl.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visitors := allVisitors(t)
	require.Len(t, visitors, 1)
	assert.Nil(t, visitors[0].UserID)
	require.Contains(t, cl.cookies, configuration.Tracking.CookieName)
	assert.NotEqual(t, cltracking.RegisteredSentinel, cl.cookies[configuration.Tracking.CookieName].Value)

	// admin api is closed to anonymous visitors
	rec = cl.do(http.MethodGet, "/admin/api/tracking/realtime", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = cl.do(http.MethodPost, "/api/login", LoginRequest{Username: "admin", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = cl.do(http.MethodPost, "/api/login", LoginRequest{Username: "admin", Password: "test-password"})
	require.Equal(t, http.StatusOK, rec.Code)

	visitors = allVisitors(t)
	require.Len(t, visitors, 1)
	require.NotNil(t, visitors[0].UserID)
	assert.Equal(t, cltracking.RegisteredSentinel, cl.cookies[configuration.Tracking.CookieName].Value)

	rec = cl.do(http.MethodGet, "/admin/api/tracking/realtime", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats clanalytics.RealtimeStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalVisitors)
	assert.Equal(t, int64(1), stats.ActiveVisitors)
	assert.Equal(t, int64(1), stats.Today.UniqueVisitors)
	assert.GreaterOrEqual(t, stats.Today.PageViews, int64(3))

	rec = cl.do(http.MethodGet, "/admin/api/tracking/stats?days=7", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = cl.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	first := allVisitors(t)[0]
	assert.True(t, first.SessionEnded())

	rec = cl.do(http.MethodGet, "/admin/api/tracking/realtime", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginBadRequest(t *testing.T) {
	cl := setupTestApp(t)

	rec := cl.do(http.MethodPost, "/api/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndex(t *testing.T) {
	cl := setupTestApp(t)

	rec := cl.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "littletrack", body["name"])
}
