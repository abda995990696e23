package handlers_analytics

import (
	"net/http"
	"strconv"

	"littletrack/internal/models/clanalytics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 365
)

type AnalyticsHandler struct {
	service *clanalytics.AnalyticsService
}

func NewAnalyticsHandler(service *clanalytics.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetStats returns the statistics of the last ?days= days (30 by default)
func (ah *AnalyticsHandler) GetStats(c *gin.Context) {
	days := defaultStatsDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxStatsDays {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "days must be between 1 and 365",
			})
			return
		}
		days = n
	}

	stats, err := ah.service.GetStats(c.Request.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve analytics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve analytics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetRealtimeStats returns today's live counters
func (ah *AnalyticsHandler) GetRealtimeStats(c *gin.Context) {
	stats, err := ah.service.GetRealtimeStats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve realtime stats")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve realtime stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
