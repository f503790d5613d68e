package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

const tradeColumns = `id, user_id, broker_id, strategy_id, symbol, trade_type, position_side, quantity,
	entry_price, exit_price, status, opened_at, closed_at, external_id, notes, created_at, updated_at`

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create добавляет сделку в журнал
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (user_id, broker_id, strategy_id, symbol, trade_type, position_side, quantity,
			entry_price, exit_price, status, opened_at, closed_at, external_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	return r.db.QueryRowContext(ctx, query,
		t.UserID,
		t.BrokerID,
		t.StrategyID,
		t.Symbol,
		t.TradeType,
		t.PositionSide,
		t.Quantity,
		t.EntryPrice,
		t.ExitPrice,
		t.Status,
		t.OpenedAt,
		t.ClosedAt,
		t.ExternalID,
		t.Notes,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID)
}

// UpsertByExternalID вставляет импортированную сделку или обновляет ранее
// импортированную с тем же (broker_id, external_id)
func (r *TradeRepository) UpsertByExternalID(ctx context.Context, t *models.Trade) error {
	if t.BrokerID == nil || t.ExternalID == nil {
		return fmt.Errorf("upsert requires broker_id and external_id")
	}

	query := `
		INSERT INTO trades (user_id, broker_id, strategy_id, symbol, trade_type, position_side, quantity,
			entry_price, exit_price, status, opened_at, closed_at, external_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (broker_id, external_id) WHERE external_id IS NOT NULL DO UPDATE SET
			symbol = EXCLUDED.symbol,
			trade_type = EXCLUDED.trade_type,
			position_side = EXCLUDED.position_side,
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			exit_price = EXCLUDED.exit_price,
			status = EXCLUDED.status,
			opened_at = EXCLUDED.opened_at,
			closed_at = EXCLUDED.closed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	now := time.Now()
	t.UpdatedAt = now

	return r.db.QueryRowContext(ctx, query,
		t.UserID,
		t.BrokerID,
		t.StrategyID,
		t.Symbol,
		t.TradeType,
		t.PositionSide,
		t.Quantity,
		t.EntryPrice,
		t.ExitPrice,
		t.Status,
		t.OpenedAt,
		t.ClosedAt,
		t.ExternalID,
		t.Notes,
		now,
	).Scan(&t.ID, &t.CreatedAt)
}

// GetByID возвращает сделку пользователя
func (r *TradeRepository) GetByID(ctx context.Context, userID, id int64) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 AND user_id = $2`

	t, err := scanTrade(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return t, nil
}

// List возвращает сделки пользователя по фильтру, новые первыми
func (r *TradeRepository) List(ctx context.Context, userID int64, filter models.TradeFilter) ([]*models.Trade, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Symbol != "" {
		add("symbol = $%d", filter.Symbol)
	}
	if filter.BrokerID != nil {
		add("broker_id = $%d", *filter.BrokerID)
	}
	if filter.From != nil {
		add("COALESCE(closed_at, opened_at) >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("COALESCE(closed_at, opened_at) <= $%d", *filter.To)
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY opened_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Update обновляет редактируемые поля сделки
func (r *TradeRepository) Update(ctx context.Context, t *models.Trade) error {
	query := `
		UPDATE trades
		SET strategy_id = $1, symbol = $2, trade_type = $3, position_side = $4, quantity = $5,
			entry_price = $6, exit_price = $7, status = $8, opened_at = $9, closed_at = $10,
			notes = $11, updated_at = $12
		WHERE id = $13 AND user_id = $14`

	t.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		t.StrategyID,
		t.Symbol,
		t.TradeType,
		t.PositionSide,
		t.Quantity,
		t.EntryPrice,
		t.ExitPrice,
		t.Status,
		t.OpenedAt,
		t.ClosedAt,
		t.Notes,
		t.UpdatedAt,
		t.ID,
		t.UserID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrTradeNotFound)
}

// Close закрывает открытую сделку по цене выхода
func (r *TradeRepository) Close(ctx context.Context, userID, id int64, exitPrice float64, closedAt time.Time) error {
	query := `
		UPDATE trades
		SET exit_price = $1, closed_at = $2, status = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6 AND status = $7`

	result, err := r.db.ExecContext(ctx, query,
		exitPrice, closedAt, models.TradeStatusClosed, time.Now(), id, userID, models.TradeStatusOpen)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrTradeNotFound)
}

// Delete удаляет сделку
func (r *TradeRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrTradeNotFound)
}

// CountByBroker возвращает количество сделок по каждому брокеру пользователя
func (r *TradeRepository) CountByBroker(ctx context.Context, userID int64) (map[int64]int, error) {
	query := `
		SELECT broker_id, COUNT(*)
		FROM trades
		WHERE user_id = $1 AND broker_id IS NOT NULL
		GROUP BY broker_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var brokerID int64
		var count int
		if err := rows.Scan(&brokerID, &count); err != nil {
			return nil, err
		}
		counts[brokerID] = count
	}
	return counts, rows.Err()
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	t := &models.Trade{}
	var (
		brokerID   sql.NullInt64
		strategyID sql.NullInt64
		exitPrice  sql.NullFloat64
		closedAt   sql.NullTime
		externalID sql.NullString
		notes      sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&brokerID,
		&strategyID,
		&t.Symbol,
		&t.TradeType,
		&t.PositionSide,
		&t.Quantity,
		&t.EntryPrice,
		&exitPrice,
		&t.Status,
		&t.OpenedAt,
		&closedAt,
		&externalID,
		&notes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if brokerID.Valid {
		t.BrokerID = &brokerID.Int64
	}
	if strategyID.Valid {
		t.StrategyID = &strategyID.Int64
	}
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if closedAt.Valid {
		t.ClosedAt = &closedAt.Time
	}
	if externalID.Valid {
		t.ExternalID = &externalID.String
	}
	t.Notes = notes.String

	return t, nil
}
