package models

import "time"

// OAuthToken - сохраненный набор OAuth токенов Upstox (не более одного на пользователя)
type OAuthToken struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsExpired возвращает true, если now >= expiresAt
func (t *OAuthToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
