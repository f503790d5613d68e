package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория стратегий
var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyExists   = errors.New("strategy already exists")
)

// StrategyRepository - работа с таблицей strategies
type StrategyRepository struct {
	db *sql.DB
}

// NewStrategyRepository создает новый экземпляр репозитория
func NewStrategyRepository(db *sql.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Create добавляет стратегию; имя уникально в пределах пользователя
func (r *StrategyRepository) Create(ctx context.Context, s *models.Strategy) error {
	query := `
		INSERT INTO strategies (user_id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	s.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query, s.UserID, s.Name, s.Description, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrStrategyExists
		}
		return err
	}
	return nil
}

// GetByID возвращает стратегию пользователя
func (r *StrategyRepository) GetByID(ctx context.Context, userID, id int64) (*models.Strategy, error) {
	query := `SELECT id, user_id, name, description, created_at FROM strategies WHERE id = $1 AND user_id = $2`

	s := &models.Strategy{}
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.ID, &s.UserID, &s.Name, &description, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	s.Description = description.String
	return s, nil
}

// ListByUser возвращает стратегии пользователя по алфавиту
func (r *StrategyRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Strategy, error) {
	query := `SELECT id, user_id, name, description, created_at FROM strategies WHERE user_id = $1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []*models.Strategy
	for rows.Next() {
		s := &models.Strategy{}
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &description, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Description = description.String
		strategies = append(strategies, s)
	}
	return strategies, rows.Err()
}

// Delete удаляет стратегию; у сделок strategy_id становится NULL
func (r *StrategyRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrStrategyNotFound)
}
