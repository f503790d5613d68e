package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория брокеров
var (
	ErrBrokerNotFound = errors.New("broker not found")
)

const brokerColumns = `id, user_id, name, broker_type, credentials, status, last_sync_at, created_at, updated_at`

// BrokerRepository - работа с таблицей brokers
type BrokerRepository struct {
	db *sql.DB
}

// NewBrokerRepository создает новый экземпляр репозитория
func NewBrokerRepository(db *sql.DB) *BrokerRepository {
	return &BrokerRepository{db: db}
}

// Create добавляет брокерский аккаунт. Credentials должны быть уже зашифрованы.
func (r *BrokerRepository) Create(ctx context.Context, b *models.BrokerRecord) error {
	query := `
		INSERT INTO brokers (user_id, name, broker_type, credentials, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = models.BrokerStatusActive
	}

	return r.db.QueryRowContext(ctx, query,
		b.UserID,
		b.Name,
		b.BrokerType,
		b.Credentials,
		b.Status,
		b.CreatedAt,
		b.UpdatedAt,
	).Scan(&b.ID)
}

// GetByID возвращает брокера пользователя по ID
func (r *BrokerRepository) GetByID(ctx context.Context, userID, id int64) (*models.BrokerRecord, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, userID))
}

// GetByUserAndType возвращает первую запись пользователя указанного типа
func (r *BrokerRepository) GetByUserAndType(ctx context.Context, userID int64, brokerType string) (*models.BrokerRecord, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE user_id = $1 AND broker_type = $2 ORDER BY id LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, brokerType))
}

// ListByUser возвращает всех брокеров пользователя
func (r *BrokerRepository) ListByUser(ctx context.Context, userID int64) ([]*models.BrokerRecord, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE user_id = $1 ORDER BY id`
	return r.scanMany(ctx, query, userID)
}

// ListActiveByUser возвращает активных брокеров пользователя
func (r *BrokerRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*models.BrokerRecord, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE user_id = $1 AND status = $2 ORDER BY id`
	return r.scanMany(ctx, query, userID, models.BrokerStatusActive)
}

// Update обновляет имя, учетные данные и статус
func (r *BrokerRepository) Update(ctx context.Context, b *models.BrokerRecord) error {
	query := `
		UPDATE brokers
		SET name = $1, credentials = $2, status = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6`

	b.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query, b.Name, b.Credentials, b.Status, b.UpdatedAt, b.ID, b.UserID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrBrokerNotFound)
}

// SetStatus меняет статус брокера (active/inactive)
func (r *BrokerRepository) SetStatus(ctx context.Context, userID, id int64, status string) error {
	query := `UPDATE brokers SET status = $1, updated_at = $2 WHERE id = $3 AND user_id = $4`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrBrokerNotFound)
}

// TouchLastSync отмечает время последней синхронизации
func (r *BrokerRepository) TouchLastSync(ctx context.Context, userID, id int64, at time.Time) error {
	query := `UPDATE brokers SET last_sync_at = $1, updated_at = $1 WHERE id = $2 AND user_id = $3`
	result, err := r.db.ExecContext(ctx, query, at, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrBrokerNotFound)
}

// Delete удаляет брокера. Импортированные сделки остаются с broker_id = NULL.
func (r *BrokerRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM brokers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrBrokerNotFound)
}

// CountActive возвращает количество активных брокеров пользователя
func (r *BrokerRepository) CountActive(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM brokers WHERE user_id = $1 AND status = $2`,
		userID, models.BrokerStatusActive,
	).Scan(&count)
	return count, err
}

func (r *BrokerRepository) scanOne(row *sql.Row) (*models.BrokerRecord, error) {
	b := &models.BrokerRecord{}
	var lastSync sql.NullTime
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Name,
		&b.BrokerType,
		&b.Credentials,
		&b.Status,
		&lastSync,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, err
	}
	if lastSync.Valid {
		b.LastSyncAt = &lastSync.Time
	}
	return b, nil
}

func (r *BrokerRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*models.BrokerRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brokers []*models.BrokerRecord
	for rows.Next() {
		b := &models.BrokerRecord{}
		var lastSync sql.NullTime
		if err := rows.Scan(
			&b.ID,
			&b.UserID,
			&b.Name,
			&b.BrokerType,
			&b.Credentials,
			&b.Status,
			&lastSync,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastSync.Valid {
			t := lastSync.Time
			b.LastSyncAt = &t
		}
		brokers = append(brokers, b)
	}

	return brokers, rows.Err()
}
