package cltracking

import (
	"fmt"
	"regexp"
	"strings"

	"littletrack/internal/models/clconfig"

	"github.com/samber/lo"
)

// Settings is the tracking configuration compiled once at startup. It is
// read-only and safe to share between requests.
type Settings struct {
	trackAjax         bool
	trackAnonymous    bool
	cookieMode        bool
	trackPageviews    bool
	trackQueryString  bool
	trackReferer      bool
	ignoreStatusCodes map[int]struct{}
	ignoreURLs        []*regexp.Regexp
	cookieName        string
}

func NewSettings(cfg clconfig.TrackingConfig) (*Settings, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.IgnoreURLs))
	for _, p := range cfg.IgnoreURLs {
		// anchored at the start of the path, unanchored at the end
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore url pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "_visitor_id"
	}

	return &Settings{
		trackAjax:         cfg.AjaxRequests,
		trackAnonymous:    cfg.AnonymousUsers,
		cookieMode:        cfg.AnonymousUsersWithCookies,
		trackPageviews:    cfg.Pageviews,
		trackQueryString:  cfg.QueryString,
		trackReferer:      cfg.Referer,
		ignoreStatusCodes: lo.Keyify(cfg.IgnoreStatusCodes),
		ignoreURLs:        patterns,
		cookieName:        cookieName,
	}, nil
}

func (s *Settings) CookieMode() bool     { return s.cookieMode }
func (s *Settings) TrackPageviews() bool { return s.trackPageviews }
func (s *Settings) CookieName() string   { return s.cookieName }

// ShouldTrack applies the tracking rules in order; the first rule that
// refuses wins.
func (s *Settings) ShouldTrack(sg *Sighting) bool {
	if sg.Session == nil {
		return false
	}

	if sg.Ajax && !s.trackAjax {
		return false
	}

	if _, ignored := s.ignoreStatusCodes[sg.Status]; ignored {
		return false
	}

	if sg.Anonymous() && !s.trackAnonymous {
		return false
	}

	path := strings.TrimLeft(sg.Path, "/")
	for _, re := range s.ignoreURLs {
		if re.MatchString(path) {
			return false
		}
	}

	return true
}
