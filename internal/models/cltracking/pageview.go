package cltracking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type PageviewRecorder struct {
	db               *gorm.DB
	trackReferer     bool
	trackQueryString bool
}

func NewPageviewRecorder(settings *Settings, db *gorm.DB) *PageviewRecorder {
	return &PageviewRecorder{
		db:               db,
		trackReferer:     settings.trackReferer,
		trackQueryString: settings.trackQueryString,
	}
}

// Record appends one pageview for visitor.
func (r *PageviewRecorder) Record(ctx context.Context, visitor *Visitor, s *Sighting, viewTime time.Time) (*Pageview, error) {
	pv := &Pageview{
		VisitorID: visitor.ID,
		URL:       s.Path,
		Method:    s.Method,
		ViewTime:  viewTime,
	}
	if r.trackReferer && s.Referer != "" {
		referer := s.Referer
		pv.Referer = &referer
	}
	if r.trackQueryString {
		query := s.QueryString
		pv.QueryString = &query
	}

	if err := r.db.WithContext(ctx).Create(pv).Error; err != nil {
		return nil, fmt.Errorf("recording pageview: %w", err)
	}
	return pv, nil
}
