package cltracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxUserAgentLength = 512

	// cookieTimeOnSite is the fixed time_on_site stored by CookieLedger.
	cookieTimeOnSite = 1
)

// Ledger records a sighting against the visitor table.
type Ledger interface {
	// RecordSighting returns the visitor row for the sighting, or nil when
	// the strategy had nothing to record.
	RecordSighting(ctx context.Context, s *Sighting, now time.Time) (*Visitor, error)
	// RecordsPageviews reports whether pageviews may hang off this strategy's rows.
	RecordsPageviews() bool
}

// NewLedger picks the strategy matching the settings.
func NewLedger(settings *Settings, db *gorm.DB) Ledger {
	if settings.CookieMode() {
		return &CookieLedger{db: db}
	}
	return &SessionLedger{db: db}
}

type updatePolicy uint8

const (
	// setOnCreate columns are written by the insert only.
	setOnCreate updatePolicy = iota
	// writeOnce columns keep the first non-null value ever written.
	writeOnce
	// latestWins columns are overwritten by every sighting carrying a value.
	latestWins
)

type fieldWrite struct {
	column string
	policy updatePolicy
	value  any
}

// visitorWrites lists the column writes a sighting produces for a visitor
// that started at start. Columns the sighting has no value for are left out.
func visitorWrites(s *Sighting, start, now time.Time) []fieldWrite {
	writes := []fieldWrite{
		{column: "ip_address", policy: setOnCreate, value: s.IPAddress},
		{column: "start_time", policy: setOnCreate, value: start},
		{column: "expiry_age", policy: latestWins, value: s.Session.ExpiryAge()},
		{column: "expiry_time", policy: latestWins, value: s.Session.ExpiryDate()},
		{column: "time_on_site", policy: latestWins, value: timeOnSite(start, now)},
	}
	if s.UserID != nil {
		writes = append(writes, fieldWrite{column: "user_id", policy: writeOnce, value: *s.UserID})
	}
	if ua := cleanUserAgent(s.UserAgent); ua != "" {
		writes = append(writes, fieldWrite{column: "user_agent", policy: latestWins, value: ua})
	}
	return writes
}

// timeOnSite counts whole seconds since start. Session expiry settings are
// deliberately not used.
func timeOnSite(start, now time.Time) int {
	seconds := int(now.Sub(start) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}

func cleanUserAgent(ua string) string {
	ua = strings.TrimSpace(strings.ToValidUTF8(ua, ""))
	if utf8.RuneCountInString(ua) <= maxUserAgentLength {
		return ua
	}
	runes := []rune(ua)
	return string(runes[:maxUserAgentLength])
}

// insertIfAbsent inserts values unless a visitor with the same identity key
// exists. It reports whether this call created the row.
func insertIfAbsent(db *gorm.DB, values map[string]any) (bool, error) {
	res := db.Model(&Visitor{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity_key"}},
			DoNothing: true,
		}).
		Create(values)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("inserting visitor: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func findVisitor(db *gorm.DB, identityKey string) (*Visitor, error) {
	var v Visitor
	if err := db.Where("identity_key = ?", identityKey).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// SessionLedger keeps exactly one visitor row per session key and updates
// it on every sighting.
type SessionLedger struct {
	db *gorm.DB
}

func (l *SessionLedger) RecordsPageviews() bool { return true }

func (l *SessionLedger) RecordSighting(ctx context.Context, s *Sighting, now time.Time) (*Visitor, error) {
	if s.Session == nil {
		return nil, ErrNoSession
	}
	key := s.Session.Key()
	if key == "" {
		return nil, fmt.Errorf("session has no key")
	}
	db := l.db.WithContext(ctx)

	v, err := findVisitor(db, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, err := l.create(db, key, s, now)
		if err != nil {
			return nil, err
		}
		if created {
			return findVisitor(db, key)
		}
		// a concurrent request inserted the row first
		v, err = findVisitor(db, key)
		if err != nil {
			return nil, fmt.Errorf("loading visitor after conflict: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("loading visitor: %w", err)
	}

	if err := l.update(db, v, s, now); err != nil {
		return nil, err
	}
	return findVisitor(db, key)
}

func (l *SessionLedger) create(db *gorm.DB, key string, s *Sighting, now time.Time) (bool, error) {
	values := map[string]any{
		"identity_key": key,
		"session_key":  key,
	}
	for _, w := range visitorWrites(s, now, now) {
		values[w.column] = w.value
	}
	return insertIfAbsent(db, values)
}

func (l *SessionLedger) update(db *gorm.DB, v *Visitor, s *Sighting, now time.Time) error {
	latest := map[string]any{}
	for _, w := range visitorWrites(s, v.StartTime, now) {
		switch w.policy {
		case latestWins:
			latest[w.column] = w.value
		case writeOnce:
			err := db.Model(&Visitor{}).
				Where("id = ? AND "+w.column+" IS NULL", v.ID).
				Update(w.column, w.value).Error
			if err != nil {
				return fmt.Errorf("updating visitor %s: %w", w.column, err)
			}
		}
	}

	if err := db.Model(&Visitor{}).Where("id = ?", v.ID).Updates(latest).Error; err != nil {
		return fmt.Errorf("updating visitor: %w", err)
	}
	return nil
}

// CookieLedger is the append-only strategy used in cookie mode. It stores
// one row per (cookie, session) pair with a fixed time_on_site, never
// updates existing rows and never carries pageviews.
type CookieLedger struct {
	db *gorm.DB
}

func (l *CookieLedger) RecordsPageviews() bool { return false }

func (l *CookieLedger) RecordSighting(ctx context.Context, s *Sighting, now time.Time) (*Visitor, error) {
	if s.CookieKey == "" {
		return nil, nil
	}
	if s.Session == nil {
		return nil, ErrNoSession
	}
	db := l.db.WithContext(ctx)

	sessionKey := s.Session.Key()
	key := s.CookieKey + "|" + sessionKey
	values := map[string]any{
		"identity_key": key,
		"session_key":  sessionKey,
		"cookie_key":   s.CookieKey,
		"ip_address":   s.IPAddress,
		"start_time":   now,
		"expiry_age":   s.Session.ExpiryAge(),
		"expiry_time":  s.Session.ExpiryDate(),
		"time_on_site": cookieTimeOnSite,
	}
	if ua := cleanUserAgent(s.UserAgent); ua != "" {
		values["user_agent"] = ua
	}

	if _, err := insertIfAbsent(db, values); err != nil {
		return nil, err
	}
	return findVisitor(db, key)
}
