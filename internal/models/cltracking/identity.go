package cltracking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxTokenAttempts bounds the draws made by TokenGenerator.Generate.
const MaxTokenAttempts = 16

// KeyExistsFunc reports whether a token is already used by a visitor.
type KeyExistsFunc func(ctx context.Context, token string) (bool, error)

// TokenGenerator mints visitor cookie tokens that no visitor row uses yet.
// The check and the later insert are not atomic; the bounded retry only
// makes a collision unlikely.
type TokenGenerator struct {
	exists   KeyExistsFunc
	newToken func() string
}

func NewTokenGenerator(exists KeyExistsFunc) *TokenGenerator {
	return &TokenGenerator{
		exists:   exists,
		newToken: uuid.NewString,
	}
}

func (g *TokenGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxTokenAttempts; attempt++ {
		token := g.newToken()
		used, err := g.exists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("checking visitor token: %w", err)
		}
		if !used {
			return token, nil
		}
	}
	return "", ErrTokenGeneration
}

// VisitorKeyExists checks a token against the identity and cookie keys of
// stored visitors.
func VisitorKeyExists(db *gorm.DB) KeyExistsFunc {
	return func(ctx context.Context, token string) (bool, error) {
		var count int64
		err := db.WithContext(ctx).
			Model(&Visitor{}).
			Where("identity_key = ? OR cookie_key = ?", token, token).
			Limit(1).
			Count(&count).Error
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}
}
