package cltracking

import "time"

// Visitor is one tracked session or cookie identity.
type Visitor struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	IdentityKey string     `gorm:"size:160;uniqueIndex;not null" json:"identity_key"`
	SessionKey  string     `gorm:"size:72;index" json:"session_key"`
	CookieKey   string     `gorm:"size:72;index" json:"cookie_key,omitempty"`
	UserID      *uint      `gorm:"index" json:"user_id"`
	IPAddress   string     `gorm:"size:39" json:"ip_address"`
	UserAgent   *string    `gorm:"type:text" json:"user_agent"`
	StartTime   time.Time  `gorm:"index;not null" json:"start_time"`
	ExpiryAge   *int       `json:"expiry_age"`
	ExpiryTime  *time.Time `json:"expiry_time"`
	TimeOnSite  *int       `json:"time_on_site"`
	EndTime     *time.Time `json:"end_time"`
	Pageviews   []Pageview `gorm:"foreignKey:VisitorID;constraint:OnDelete:CASCADE" json:"-"`
}

// SessionExpired reports whether the session ran past its expiry.
func (v *Visitor) SessionExpired(now time.Time) bool {
	if v.ExpiryTime == nil {
		return false
	}
	return !v.ExpiryTime.After(now)
}

// SessionEnded reports whether the session ended with an explicit logout.
func (v *Visitor) SessionEnded() bool {
	return v.EndTime != nil
}

// Pageview is a single tracked request. Rows are never updated.
type Pageview struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	VisitorID   uint      `gorm:"index;not null" json:"visitor_id"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	Method      string    `gorm:"size:20" json:"method"`
	Referer     *string   `gorm:"type:text" json:"referer"`
	QueryString *string   `gorm:"type:text" json:"query_string"`
	ViewTime    time.Time `gorm:"index;not null" json:"view_time"`
}

func (Visitor) TableName() string {
	return "visitors"
}

func (Pageview) TableName() string {
	return "pageviews"
}

// Models lists the tables this package owns, for AutoMigrate.
func Models() []any {
	return []any{&Visitor{}, &Pageview{}}
}
