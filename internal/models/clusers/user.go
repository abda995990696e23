package clusers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"littletrack/internal/models/clconfig"

	"github.com/andskur/argon2-hashing"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var ErrInvalidCredentials = errors.New("invalid credentials")

// User is an account able to log in. Visitors link to it through user_id.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Login     string    `gorm:"size:64;uniqueIndex;not null" json:"login"`
	Hash      string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// HashPassword returns the argon2 hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := argon2.GenerateFromPassword([]byte(password), argon2.DefaultParams)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// EnsureAdmin creates or refreshes the configured account. A clear text
// pass wins over a precomputed hash. Nothing happens without a login.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg clconfig.UserConfig) (*User, error) {
	if cfg.Login == "" {
		return nil, nil
	}

	hash := cfg.Hash
	if cfg.Pass != "" {
		var err error
		if hash, err = HashPassword(cfg.Pass); err != nil {
			return nil, err
		}
	}
	if hash == "" {
		return nil, fmt.Errorf("user %q needs a pass or a hash", cfg.Login)
	}

	db = db.WithContext(ctx)
	var user User
	err := db.Where("login = ?", cfg.Login).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = User{Login: cfg.Login, Hash: hash}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("creating user %q: %w", cfg.Login, err)
		}
	case err != nil:
		return nil, fmt.Errorf("loading user %q: %w", cfg.Login, err)
	case user.Hash != hash:
		if err := db.Model(&user).Update("hash", hash).Error; err != nil {
			return nil, fmt.Errorf("updating user %q: %w", cfg.Login, err)
		}
	}
	return &user, nil
}

// Authenticate checks login and password. Unknown logins and wrong
// passwords both return ErrInvalidCredentials.
func Authenticate(ctx context.Context, db *gorm.DB, login, password string) (*User, error) {
	var user User
	err := db.WithContext(ctx).Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if err := argon2.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}
