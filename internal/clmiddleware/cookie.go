package clmiddleware

import (
	"net/http"
	"time"

	"littletrack/internal/clmetrics"
	"littletrack/internal/models/clconfig"
	"littletrack/internal/models/cltracking"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CookieMiddleware issues and refreshes the long-lived visitor cookie on
// every response, tracked or not.
type CookieMiddleware struct {
	issuer *cltracking.CookieIssuer
	name   string
	domain string
	secure bool
}

func NewCookieMiddleware(issuer *cltracking.CookieIssuer, name string, session clconfig.SessionConfig) *CookieMiddleware {
	return &CookieMiddleware{
		issuer: issuer,
		name:   name,
		domain: session.Domain,
		secure: session.Secure,
	}
}

func (cm *CookieMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, _ := c.Cookie(cm.name)
		value, err := cm.issuer.Resolve(c.Request.Context(), current)
		if err != nil {
			clmetrics.CookiesIssuedTotal.WithLabelValues("error").Inc()
			log.Error().
				Err(err).
				Str("path", c.Request.URL.Path).
				Msg("Visitor cookie issuance failed")
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		beforeWrite(c, func() { cm.write(c, value) })
	}
}

func (cm *CookieMiddleware) write(c *gin.Context, value string) {
	decision := cm.issuer.Decide(value, CurrentUserID(c) != nil)
	if !decision.Write {
		clmetrics.CookiesIssuedTotal.WithLabelValues("kept").Inc()
		return
	}

	result := "token"
	if decision.Value == cltracking.RegisteredSentinel {
		result = "sentinel"
	}
	clmetrics.CookiesIssuedTotal.WithLabelValues(result).Inc()

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cm.name,
		Value:    decision.Value,
		Path:     "/",
		Domain:   cm.domain,
		MaxAge:   int(cltracking.CookieMaxAge / time.Second),
		Expires:  time.Now().Add(cltracking.CookieMaxAge).UTC(),
		Secure:   cm.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
