package models

import (
	"time"

	"tradejournal/pkg/utils"
)

// Trade представляет запись журнала сделок
type Trade struct {
	ID           int64      `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	BrokerID     *int64     `json:"broker_id,omitempty" db:"broker_id"`
	StrategyID   *int64     `json:"strategy_id,omitempty" db:"strategy_id"`
	Symbol       string     `json:"symbol" db:"symbol"`
	TradeType    string     `json:"trade_type" db:"trade_type"`       // buy, sell
	PositionSide string     `json:"position_side" db:"position_side"` // long, short
	Quantity     float64    `json:"quantity" db:"quantity"`
	EntryPrice   float64    `json:"entry_price" db:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty" db:"exit_price"`
	Status       string     `json:"status" db:"status"` // open, closed
	OpenedAt     time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	ExternalID   *string    `json:"external_id,omitempty" db:"external_id"` // id сделки у брокера
	Notes        string     `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Направление сделки
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Сторона позиции
const (
	PositionLong  = "long"
	PositionShort = "short"
)

// Статусы сделки
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// IsClosed проверяет, закрыта ли сделка
func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed
}

// PnL возвращает реализованный PNL закрытой сделки.
// Для открытых сделок (или без цены выхода) возвращает 0, false.
func (t *Trade) PnL() (float64, bool) {
	if !t.IsClosed() || t.ExitPrice == nil {
		return 0, false
	}
	side := t.PositionSide
	if side != PositionShort {
		side = PositionLong
	}
	return utils.CalculatePNL(side, t.EntryPrice, *t.ExitPrice, t.Quantity), true
}

// TradeFilter - фильтры для GET /api/trades и аналитики
type TradeFilter struct {
	Status   string
	Symbol   string
	BrokerID *int64
	From     *time.Time // по времени закрытия, для открытых сделок по времени открытия
	To       *time.Time
}

// PositionSideFor возвращает сторону позиции по направлению сделки
func PositionSideFor(tradeType string) string {
	if tradeType == TradeTypeSell {
		return PositionShort
	}
	return PositionLong
}
