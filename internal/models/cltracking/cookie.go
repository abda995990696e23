package cltracking

import (
	"context"
	"time"
)

const (
	// RegisteredSentinel replaces the visitor token once the browser's
	// user has authenticated. It is terminal.
	RegisteredSentinel = "user_registered"

	CookieMaxAge = 360 * 24 * time.Hour
)

// CookieDecision tells the transport what to do with the visitor cookie.
type CookieDecision struct {
	Value string
	Write bool
}

// CookieIssuer drives the visitor cookie through
// absent -> token -> (token | sentinel).
type CookieIssuer struct {
	tokens *TokenGenerator
}

func NewCookieIssuer(tokens *TokenGenerator) *CookieIssuer {
	return &CookieIssuer{tokens: tokens}
}

// Resolve returns current, or a freshly minted token when the request
// carried no cookie.
func (ci *CookieIssuer) Resolve(ctx context.Context, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	return ci.tokens.Generate(ctx)
}

// Decide picks the cookie to send back for value.
func (ci *CookieIssuer) Decide(value string, authenticated bool) CookieDecision {
	switch {
	case value == RegisteredSentinel:
		return CookieDecision{Value: RegisteredSentinel}
	case authenticated:
		return CookieDecision{Value: RegisteredSentinel, Write: true}
	default:
		return CookieDecision{Value: value, Write: true}
	}
}
