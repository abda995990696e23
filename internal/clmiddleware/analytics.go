package clmiddleware

import (
	"net/netip"
	"strings"
	"time"

	"littletrack/internal/clmetrics"
	"littletrack/internal/models/cltracking"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// sessionTrackingKey holds the tracking key minted for a session. The
// cookie store has no server-side session id.
const sessionTrackingKey = "_tracking_key"

type ginSession struct {
	session sessions.Session
	maxAge  int
}

func (s *ginSession) Key() string {
	key, _ := s.session.Get(sessionTrackingKey).(string)
	return key
}

func (s *ginSession) Save() error {
	if s.Key() == "" {
		s.session.Set(sessionTrackingKey, uuid.NewString())
	}
	return s.session.Save()
}

func (s *ginSession) ExpiryAge() int {
	return s.maxAge
}

func (s *ginSession) ExpiryDate() time.Time {
	return time.Now().Add(time.Duration(s.maxAge) * time.Second)
}

func sessionFrom(c *gin.Context, maxAge int) cltracking.Session {
	if !hasSession(c) {
		return nil
	}
	return &ginSession{session: sessions.Default(c), maxAge: maxAge}
}

// SessionKey returns the tracking key of the current session, empty when
// none was minted yet.
func SessionKey(c *gin.Context) string {
	if !hasSession(c) {
		return ""
	}
	return (&ginSession{session: sessions.Default(c)}).Key()
}

type AnalyticsMiddleware struct {
	tracker       *cltracking.Tracker
	sessionMaxAge int
}

func NewAnalyticsMiddleware(tracker *cltracking.Tracker, sessionMaxAge int) *AnalyticsMiddleware {
	return &AnalyticsMiddleware{
		tracker:       tracker,
		sessionMaxAge: sessionMaxAge,
	}
}

// Middleware records the request once its status is known, just before
// the response is sent.
func (am *AnalyticsMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		beforeWrite(c, func() { am.track(c) })
	}
}

func (am *AnalyticsMiddleware) track(c *gin.Context) {
	s := &cltracking.Sighting{
		Path:        c.Request.URL.Path,
		Method:      c.Request.Method,
		Status:      c.Writer.Status(),
		Ajax:        c.GetHeader("X-Requested-With") == "XMLHttpRequest",
		UserAgent:   c.Request.UserAgent(),
		Referer:     c.Request.Referer(),
		QueryString: c.Request.URL.RawQuery,
		IPAddress:   ClientIP(c),
		UserID:      CurrentUserID(c),
		Session:     sessionFrom(c, am.sessionMaxAge),
	}
	settings := am.tracker.Settings()
	if settings.CookieMode() {
		s.CookieKey, _ = c.Cookie(settings.CookieName())
	}

	visitor, err := am.tracker.Track(c.Request.Context(), s)
	switch {
	case err != nil:
		clmetrics.SightingsTotal.WithLabelValues("error").Inc()
		log.Error().
			Err(err).
			Str("path", s.Path).
			Str("ip", s.IPAddress).
			Msg("Error recording visitor")
	case visitor == nil:
		clmetrics.SightingsTotal.WithLabelValues("skipped").Inc()
	default:
		clmetrics.SightingsTotal.WithLabelValues("tracked").Inc()
		log.Debug().
			Str("visitor", visitor.IdentityKey).
			Str("path", s.Path).
			Msg("Visitor recorded")
	}
}

// ClientIP returns the client address, preferring proxy headers.
func ClientIP(c *gin.Context) string {
	ip := c.GetHeader("X-Real-IP")
	if ip == "" {
		if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
			ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
	}
	if ip == "" {
		ip = c.ClientIP()
	}
	return normalizeIP(ip)
}

// normalizeIP strips ports and zones. Unparseable input is returned as is.
func normalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().WithZone("").String()
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.WithZone("").String()
	}
	return raw
}
