package cltracking

import (
	"path/filepath"
	"testing"
	"time"

	"littletrack/internal/models/cldb"
	"littletrack/internal/models/clconfig"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := cldb.Open(clconfig.DatabaseConfig{
		Db:   "sqlite",
		Path: filepath.Join(t.TempDir(), "tracking.db"),
	}, "silent")
	require.NoError(t, err)
	require.NoError(t, cldb.Migrate(db, Models()...))
	return db
}

func testSettings(t *testing.T, mutate func(*clconfig.TrackingConfig)) *Settings {
	t.Helper()
	cfg := clconfig.DefaultConfig().Tracking
	if mutate != nil {
		mutate(&cfg)
	}
	settings, err := NewSettings(cfg)
	require.NoError(t, err)
	return settings
}

type fakeSession struct {
	key    string
	saves  int
	age    int
	expiry time.Time
}

func newFakeSession(key string) *fakeSession {
	return &fakeSession{key: key, age: 1209600, expiry: t0.Add(14 * 24 * time.Hour)}
}

func (s *fakeSession) Key() string           { return s.key }
func (s *fakeSession) ExpiryAge() int        { return s.age }
func (s *fakeSession) ExpiryDate() time.Time { return s.expiry }

func (s *fakeSession) Save() error {
	s.saves++
	if s.key == "" {
		s.key = uuid.NewString()
	}
	return nil
}

func sighting(session Session) *Sighting {
	return &Sighting{
		Path:      "/articles/42",
		Method:    "GET",
		Status:    200,
		UserAgent: "Mozilla/5.0",
		IPAddress: "192.0.2.10",
		Session:   session,
	}
}

func uintPtr(v uint) *uint { return &v }

func countVisitors(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Visitor{}).Count(&n).Error)
	return n
}

func countPageviews(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Pageview{}).Count(&n).Error)
	return n
}
