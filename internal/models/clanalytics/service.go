package clanalytics

import (
	"context"
	"fmt"
	"time"

	"littletrack/internal/clredis"
	"littletrack/internal/models/cltracking"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AnalyticsService feeds the live counters from the tracker and reads
// visitor statistics back.
type AnalyticsService struct {
	db       *gorm.DB
	counters clredis.CounterStore
	now      func() time.Time
}

func NewAnalyticsService(db *gorm.DB, counters clredis.CounterStore) *AnalyticsService {
	return &AnalyticsService{
		db:       db,
		counters: counters,
		now:      time.Now,
	}
}

// ObserveSighting counts a recorded sighting in today's live counters.
func (as *AnalyticsService) ObserveSighting(ctx context.Context, v *cltracking.Visitor, pv *cltracking.Pageview, now time.Time) {
	if err := as.counters.Hit(ctx, now, v.IdentityKey, pv != nil); err != nil {
		log.Warn().Err(err).Str("visitor", v.IdentityKey).Msg("Live counters update failed")
	}
}

type RealtimeStats struct {
	Today          clredis.DayCounts `json:"today"`
	ActiveVisitors int64             `json:"active_visitors"`
	TotalVisitors  int64             `json:"total_visitors"`
}

// GetRealtimeStats returns today's live counters plus the visitors whose
// session is still open.
func (as *AnalyticsService) GetRealtimeStats(ctx context.Context) (*RealtimeStats, error) {
	now := as.now()
	stats := &RealtimeStats{}

	today, err := as.counters.Day(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("error reading live counters: %w", err)
	}
	stats.Today = today

	db := as.db.WithContext(ctx)
	err = db.Model(&cltracking.Visitor{}).
		Where("end_time IS NULL AND expiry_time > ?", now).
		Count(&stats.ActiveVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error counting active visitors: %w", err)
	}

	err = db.Model(&cltracking.Visitor{}).Count(&stats.TotalVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error counting visitors: %w", err)
	}
	return stats, nil
}

type Stats struct {
	Since                  time.Time      `json:"since"`
	TotalPageViews         int64          `json:"total_page_views"`
	UniqueVisitors         int64          `json:"unique_visitors"`
	AuthenticatedVisitors  int64          `json:"authenticated_visitors"`
	AvgPageViewsPerVisitor float64        `json:"avg_page_views_per_visitor"`
	TopPages               []PageStat     `json:"top_pages"`
	TopReferrers           []ReferrerStat `json:"top_referrers"`
	DailyStats             []DailyStat    `json:"daily_stats"`
}

type PageStat struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

type ReferrerStat struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

type DailyStat struct {
	Date           string `json:"date"`
	PageViews      int64  `json:"page_views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// GetStats aggregates the pageviews and visitors of the last days days.
func (as *AnalyticsService) GetStats(ctx context.Context, days int) (*Stats, error) {
	since := as.now().AddDate(0, 0, -days)
	db := as.db.WithContext(ctx)
	stats := &Stats{Since: since}

	err := db.Model(&cltracking.Pageview{}).
		Where("view_time >= ?", since).
		Count(&stats.TotalPageViews).Error
	if err != nil {
		return nil, fmt.Errorf("error counting page views: %w", err)
	}

	err = db.Model(&cltracking.Visitor{}).
		Where("start_time >= ?", since).
		Count(&stats.UniqueVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error counting unique visitors: %w", err)
	}

	err = db.Model(&cltracking.Visitor{}).
		Where("start_time >= ? AND user_id IS NOT NULL", since).
		Count(&stats.AuthenticatedVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("error counting authenticated visitors: %w", err)
	}

	if stats.UniqueVisitors > 0 {
		stats.AvgPageViewsPerVisitor = float64(stats.TotalPageViews) / float64(stats.UniqueVisitors)
	}

	err = db.Model(&cltracking.Pageview{}).
		Select("url as path, COUNT(*) as views").
		Where("view_time >= ?", since).
		Group("url").
		Order("views DESC").
		Limit(10).
		Scan(&stats.TopPages).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top pages: %w", err)
	}

	err = db.Model(&cltracking.Pageview{}).
		Select("referer as referrer, COUNT(*) as count").
		Where("view_time >= ? AND referer IS NOT NULL AND referer != ''", since).
		Group("referer").
		Order("count DESC").
		Limit(10).
		Scan(&stats.TopReferrers).Error
	if err != nil {
		return nil, fmt.Errorf("error getting top referrers: %w", err)
	}

	err = db.Model(&cltracking.Pageview{}).
		Select("DATE(view_time) as date, COUNT(*) as page_views, COUNT(DISTINCT visitor_id) as unique_visitors").
		Where("view_time >= ?", since).
		Group("DATE(view_time)").
		Order("date ASC").
		Scan(&stats.DailyStats).Error
	if err != nil {
		return nil, fmt.Errorf("error getting daily stats: %w", err)
	}

	return stats, nil
}

// Cleanup deletes pageviews older than cutoff, then visitors that started
// before cutoff and whose session is over.
func Cleanup(ctx context.Context, db *gorm.DB, cutoff time.Time) error {
	db = db.WithContext(ctx)

	result := db.Where("view_time < ?", cutoff).Delete(&cltracking.Pageview{})
	if result.Error != nil {
		return fmt.Errorf("deleting old pageviews: %w", result.Error)
	}
	log.Info().Int64("rows", result.RowsAffected).Msg("Deleted old pageviews")

	stale := db.Model(&cltracking.Visitor{}).
		Select("id").
		Where("start_time < ? AND (expiry_time IS NULL OR expiry_time < ?)", cutoff, cutoff)

	result = db.Where("visitor_id IN (?)", stale).Delete(&cltracking.Pageview{})
	if result.Error != nil {
		return fmt.Errorf("deleting pageviews of old visitors: %w", result.Error)
	}

	result = db.Where("start_time < ? AND (expiry_time IS NULL OR expiry_time < ?)", cutoff, cutoff).
		Delete(&cltracking.Visitor{})
	if result.Error != nil {
		return fmt.Errorf("deleting old visitors: %w", result.Error)
	}
	log.Info().Int64("rows", result.RowsAffected).Msg("Deleted old visitors")

	return nil
}

// StartRetention schedules a daily Cleanup at 2am keeping the last days
// days. It returns nil when days is 0.
func StartRetention(db *gorm.DB, days int) (*cron.Cron, error) {
	if days <= 0 {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc("0 2 * * *", func() {
		cutoff := time.Now().AddDate(0, 0, -days)
		if err := Cleanup(context.Background(), db, cutoff); err != nil {
			log.Error().Err(err).Msg("Retention cleanup failed")
			return
		}
		log.Info().Int("days", days).Msg("Retention cleanup completed")
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling retention: %w", err)
	}

	c.Start()
	return c, nil
}
