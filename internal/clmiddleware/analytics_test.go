package clmiddleware

import (
	"net/http"
	"testing"

	"littletrack/internal/models/clconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingSessionMode(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.get("/", "User-Agent", "test-agent/1.0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", rec.Body.String())
	require.Contains(t, ts.cookies, "test-session")

	visitors := ts.visitors(t)
	require.Len(t, visitors, 1)
	first := visitors[0]
	assert.NotEmpty(t, first.IdentityKey)
	assert.Equal(t, "192.0.2.1", first.IPAddress)
	assert.Equal(t, "test-agent/1.0", *first.UserAgent)
	assert.Equal(t, testMaxAge, *first.ExpiryAge)

	ts.get("/")
	visitors = ts.visitors(t)
	require.Len(t, visitors, 1)
	assert.Equal(t, first.IdentityKey, visitors[0].IdentityKey)
	assert.True(t, visitors[0].StartTime.Equal(first.StartTime))
}

func TestTrackingIgnoredStatus(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		tracking: func(c *clconfig.TrackingConfig) { c.IgnoreStatusCodes = []int{404} },
	})

	rec := ts.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, ts.visitors(t))

	// the visitor cookie is issued even when the request is not tracked
	assert.Contains(t, ts.cookies, "_visitor_id")
}

func TestTrackingIgnoredURL(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		tracking: func(c *clconfig.TrackingConfig) {
			c.IgnoreURLs = []string{"^health"}
			c.AjaxRequests = true
		},
	})

	ts.get("/health")
	assert.Empty(t, ts.visitors(t))
}

func TestTrackingAjax(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.get("/", "X-Requested-With", "XMLHttpRequest")
	assert.Empty(t, ts.visitors(t))

	ts.get("/")
	assert.Len(t, ts.visitors(t), 1)
}

func TestTrackingAnonymousDisabled(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		tracking: func(c *clconfig.TrackingConfig) { c.AnonymousUsers = false },
	})

	ts.get("/")
	assert.Empty(t, ts.visitors(t))

	ts.get("/login/5")
	visitors := ts.visitors(t)
	require.Len(t, visitors, 1)
	require.NotNil(t, visitors[0].UserID)
	assert.Equal(t, uint(5), *visitors[0].UserID)
}

func TestTrackingLoginKeepsVisitor(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.get("/")
	before := ts.visitors(t)
	require.Len(t, before, 1)
	assert.Nil(t, before[0].UserID)

	ts.get("/login/5")
	after := ts.visitors(t)
	require.Len(t, after, 1)
	require.NotNil(t, after[0].UserID)
	assert.Equal(t, uint(5), *after[0].UserID)
	assert.True(t, after[0].StartTime.Equal(before[0].StartTime))
}

func TestTrackingEmptyResponse(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.get("/empty")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, ts.visitors(t), 1)
}

func TestTrackingWithoutSessionMiddleware(t *testing.T) {
	ts := newTestServer(t, serverOptions{noSession: true})

	rec := ts.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.visitors(t))
}

func TestTrackingCookieMode(t *testing.T) {
	ts := newTestServer(t, serverOptions{
		tracking: func(c *clconfig.TrackingConfig) {
			c.AnonymousUsersWithCookies = true
			c.Pageviews = true
		},
	})

	// no visitor cookie yet: nothing recorded, cookie issued
	ts.get("/")
	assert.Empty(t, ts.visitors(t))
	require.Contains(t, ts.cookies, "_visitor_id")
	token := ts.cookies["_visitor_id"].Value

	ts.get("/")
	ts.get("/")
	visitors := ts.visitors(t)
	require.Len(t, visitors, 1)
	assert.Equal(t, token, visitors[0].CookieKey)
	assert.Equal(t, 1, *visitors[0].TimeOnSite)

	var pageviews int64
	require.NoError(t, ts.db.Table("pageviews").Count(&pageviews).Error)
	assert.Zero(t, pageviews)
}
