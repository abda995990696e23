package cltracking

import "time"

// Session is the host session seen by the tracker.
type Session interface {
	// Key returns the session key, empty until the session has been saved.
	Key() string
	// Save persists the session, minting a key when it has none.
	Save() error
	ExpiryAge() int
	ExpiryDate() time.Time
}

// Sighting is one request/response pair offered to the tracker.
type Sighting struct {
	Path        string
	Method      string
	Status      int
	Ajax        bool
	UserAgent   string
	Referer     string
	QueryString string
	IPAddress   string
	// UserID is nil for anonymous requests.
	UserID *uint
	// Session is nil when the host has no session support installed.
	Session Session
	// CookieKey is the visitor cookie sent with the request, if any.
	CookieKey string
}

func (s *Sighting) Anonymous() bool {
	return s.UserID == nil
}
