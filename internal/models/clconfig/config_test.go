package clconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestLoadConfigDefaults(t *testing.T) {
	conf, err := LoadConfig(writeFile(t, "production: false\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", conf.Database.Db)
	assert.True(t, conf.Tracking.AnonymousUsers)
	assert.False(t, conf.Tracking.AjaxRequests)
	assert.False(t, conf.Tracking.Pageviews)
	assert.Equal(t, "_visitor_id", conf.Tracking.CookieName)
	assert.Equal(t, []string{`^(favicon\.ico|robots\.txt)$`}, conf.Tracking.IgnoreURLs)
}

func TestLoadConfigYaml(t *testing.T) {
	conf, err := LoadConfig(writeFile(t, `
tracking:
  pageviews: true
  anonymous_users: false
  ignore_status_codes: [404, 500]
  ignore_urls: ["^health"]
`))
	require.NoError(t, err)

	assert.True(t, conf.Tracking.Pageviews)
	assert.False(t, conf.Tracking.AnonymousUsers)
	assert.Equal(t, []int{404, 500}, conf.Tracking.IgnoreStatusCodes)
	assert.Equal(t, []string{"^health"}, conf.Tracking.IgnoreURLs)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRACK_AJAX_REQUESTS", "true")
	t.Setenv("TRACK_IGNORE_STATUS_CODES", "403,404")
	t.Setenv("TRACK_COOKIE_NAME", "_vid")

	conf, err := LoadConfig(writeFile(t, "tracking:\n  ajax_requests: false\n"))
	require.NoError(t, err)

	assert.True(t, conf.Tracking.AjaxRequests)
	assert.Equal(t, []int{403, 404}, conf.Tracking.IgnoreStatusCodes)
	assert.Equal(t, "_vid", conf.Tracking.CookieName)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "database:\n  db: oracle\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCreateExampleConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "example.yaml")
	name, err := CreateExampleConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, filename, name)

	conf, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "admin", conf.User.Login)
	assert.True(t, conf.Tracking.Pageviews)
	assert.Contains(t, conf.Tracking.IgnoreURLs, "^health")
}
