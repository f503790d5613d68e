package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradejournal/internal/models"
)

// ErrTokenNotFound - у пользователя нет сохраненных OAuth токенов
var ErrTokenNotFound = errors.New("oauth token not found")

// TokenRepository - работа с таблицей oauth_tokens (одна строка на пользователя)
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository создает новый экземпляр репозитория
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert сохраняет набор токенов пользователя, заменяя существующий
func (r *TokenRepository) Upsert(ctx context.Context, tok *models.OAuthToken) error {
	query := `
		INSERT INTO oauth_tokens (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`

	tok.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query, tok.UserID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.UpdatedAt)
	return err
}

// Get возвращает токены пользователя
func (r *TokenRepository) Get(ctx context.Context, userID int64) (*models.OAuthToken, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, updated_at
		FROM oauth_tokens
		WHERE user_id = $1`

	tok := &models.OAuthToken{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&tok.UserID,
		&tok.AccessToken,
		&tok.RefreshToken,
		&tok.ExpiresAt,
		&tok.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return tok, nil
}

// UpdateAccessToken записывает новый access токен и срок действия после refresh.
// Refresh токен не меняется.
func (r *TokenRepository) UpdateAccessToken(ctx context.Context, userID int64, accessToken string, expiresAt time.Time) error {
	query := `
		UPDATE oauth_tokens
		SET access_token = $1, expires_at = $2, updated_at = $3
		WHERE user_id = $4`

	result, err := r.db.ExecContext(ctx, query, accessToken, expiresAt, time.Now(), userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrTokenNotFound)
}

// Delete удаляет токены пользователя. Отсутствие строки не считается ошибкой.
func (r *TokenRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = $1`, userID)
	return err
}

// ListUserIDs возвращает пользователей с подключенным OAuth (для периодической синхронизации)
func (r *TokenRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM oauth_tokens ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
