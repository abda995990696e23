package cltracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Observer is notified after every recorded sighting. pv is nil when no
// pageview was stored.
type Observer interface {
	ObserveSighting(ctx context.Context, v *Visitor, pv *Pageview, now time.Time)
}

type Tracker struct {
	db        *gorm.DB
	settings  *Settings
	ledger    Ledger
	pageviews *PageviewRecorder
	observers []Observer
	now       func() time.Time

	warnNoSession sync.Once
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observers = append(t.observers, o) }
}

func NewTracker(db *gorm.DB, settings *Settings, opts ...Option) *Tracker {
	t := &Tracker{
		db:        db,
		settings:  settings,
		ledger:    NewLedger(settings, db),
		pageviews: NewPageviewRecorder(settings, db),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Settings() *Settings {
	return t.settings
}

// Track records s when the settings allow it. It returns nil, nil when
// the sighting was not tracked.
func (t *Tracker) Track(ctx context.Context, s *Sighting) (*Visitor, error) {
	if s.Session == nil {
		t.warnNoSession.Do(func() {
			log.Warn().Msg("visitor tracking is installed without session middleware, nothing will be tracked")
		})
	}
	if !t.settings.ShouldTrack(s) {
		return nil, nil
	}

	if s.Session.Key() == "" {
		if err := s.Session.Save(); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
	}

	// Only the time between the first and the latest sighting is
	// certain; session expiry settings would skew it.
	now := t.now()

	visitor, err := t.ledger.RecordSighting(ctx, s, now)
	if err != nil || visitor == nil {
		return visitor, err
	}

	var pv *Pageview
	if t.settings.TrackPageviews() && t.ledger.RecordsPageviews() {
		pv, err = t.pageviews.Record(ctx, visitor, s, now)
		if err != nil {
			return visitor, err
		}
	}

	for _, o := range t.observers {
		o.ObserveSighting(ctx, visitor, pv, now)
	}
	return visitor, nil
}

// EndSession stamps end_time on the visitors of sessionKey. The host calls
// it on logout.
func (t *Tracker) EndSession(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return nil
	}
	err := t.db.WithContext(ctx).
		Model(&Visitor{}).
		Where("session_key = ? AND end_time IS NULL", sessionKey).
		Update("end_time", t.now()).Error
	if err != nil {
		return fmt.Errorf("ending visitor session: %w", err)
	}
	return nil
}
