package models

import "time"

// PortfolioSummary - сводка портфеля (GET /api/portfolio/summary)
type PortfolioSummary struct {
	TotalTrades   int     `json:"total_trades"`
	OpenTrades    int     `json:"open_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	RealizedPnl   float64 `json:"realized_pnl"`
	WinRate       float64 `json:"win_rate"`      // в процентах
	OpenExposure  float64 `json:"open_exposure"` // сумма entry*qty открытых сделок
	ActiveBrokers int     `json:"active_brokers"`
}

// AnalyticsData - данные для страниц аналитики (GET /api/analytics/data)
type AnalyticsData struct {
	EquityCurve   []EquityPoint `json:"equity_curve"`
	PnlBySymbol   []SymbolPnl   `json:"pnl_by_symbol"`
	PnlByMonth    []MonthPnl    `json:"pnl_by_month"`
	Wins          int           `json:"wins"`
	Losses        int           `json:"losses"`
	AverageWin    float64       `json:"average_win"`
	AverageLoss   float64       `json:"average_loss"`
	ProfitFactor  float64       `json:"profit_factor"`
	LargestWin    float64       `json:"largest_win"`
	LargestLoss   float64       `json:"largest_loss"`
	TotalRealized float64       `json:"total_realized"`
}

// EquityPoint - точка кривой доходности (накопленный PNL на конец дня)
type EquityPoint struct {
	Date       time.Time `json:"date"`
	Cumulative float64   `json:"cumulative"`
}

// SymbolPnl - PNL по инструменту
type SymbolPnl struct {
	Symbol string  `json:"symbol"`
	Trades int     `json:"trades"`
	Pnl    float64 `json:"pnl"`
}

// MonthPnl - PNL по месяцу (YYYY-MM)
type MonthPnl struct {
	Month  string  `json:"month"`
	Trades int     `json:"trades"`
	Pnl    float64 `json:"pnl"`
}

// Strategy - торговая стратегия пользователя
type Strategy struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
