package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tradejournal/internal/auth"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// ErrInvalidPeriod - неизвестный период аналитики
var ErrInvalidPeriod = errors.New("invalid period")

// PortfolioService считает сводку и аналитику по сделкам пользователя
type PortfolioService struct {
	trades  TradeRepositoryInterface
	brokers BrokerRepositoryInterface
}

// NewPortfolioService создает новый экземпляр сервиса
func NewPortfolioService(trades TradeRepositoryInterface, brokers BrokerRepositoryInterface) *PortfolioService {
	return &PortfolioService{trades: trades, brokers: brokers}
}

// Summary возвращает сводку портфеля
func (s *PortfolioService) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	trades, err := s.trades.List(ctx, userID, models.TradeFilter{})
	if err != nil {
		return nil, err
	}
	activeBrokers, err := s.brokers.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.PortfolioSummary{
		TotalTrades:   len(trades),
		ActiveBrokers: activeBrokers,
	}

	var wins, realizedCount int
	for _, t := range trades {
		if !t.IsClosed() {
			summary.OpenTrades++
			summary.OpenExposure += t.EntryPrice * t.Quantity
			continue
		}
		summary.ClosedTrades++
		if pnl, ok := t.PnL(); ok {
			realizedCount++
			summary.RealizedPnl += pnl
			if pnl > 0 {
				wins++
			}
		}
	}

	summary.RealizedPnl = utils.Round2(summary.RealizedPnl)
	summary.OpenExposure = utils.Round2(summary.OpenExposure)
	summary.WinRate = utils.Round2(utils.WinRate(wins, realizedCount))
	return summary, nil
}

// Analytics строит данные для страниц аналитики за период (day, week, month, year, all)
func (s *PortfolioService) Analytics(ctx context.Context, period string) (*models.AnalyticsData, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := utils.ParsePeriod(period)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	filter := models.TradeFilter{Status: models.TradeStatusClosed}
	if p != utils.PeriodAll {
		r := utils.PeriodRange(p, timeNow())
		filter.From = &r.Start
		filter.To = &r.End
	}

	trades, err := s.trades.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return buildAnalytics(trades), nil
}

type realized struct {
	symbol   string
	closedAt time.Time
	pnl      float64
}

// buildAnalytics агрегирует закрытые сделки с известным PNL
func buildAnalytics(trades []*models.Trade) *models.AnalyticsData {
	data := &models.AnalyticsData{
		EquityCurve: []models.EquityPoint{},
		PnlBySymbol: []models.SymbolPnl{},
		PnlByMonth:  []models.MonthPnl{},
	}

	items := make([]realized, 0, len(trades))
	for _, t := range trades {
		pnl, ok := t.PnL()
		if !ok {
			continue
		}
		closedAt := t.OpenedAt
		if t.ClosedAt != nil {
			closedAt = *t.ClosedAt
		}
		items = append(items, realized{symbol: t.Symbol, closedAt: closedAt, pnl: pnl})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].closedAt.Before(items[j].closedAt) })

	var grossProfit, grossLoss float64
	bySymbol := make(map[string]*models.SymbolPnl)
	byMonth := make(map[string]*models.MonthPnl)
	var cumulative float64

	for _, it := range items {
		data.TotalRealized += it.pnl
		switch {
		case it.pnl > 0:
			data.Wins++
			grossProfit += it.pnl
			data.LargestWin = utils.Max(data.LargestWin, it.pnl)
		case it.pnl < 0:
			data.Losses++
			grossLoss += -it.pnl
			data.LargestLoss = utils.Min(data.LargestLoss, it.pnl)
		}

		sym, ok := bySymbol[it.symbol]
		if !ok {
			sym = &models.SymbolPnl{Symbol: it.symbol}
			bySymbol[it.symbol] = sym
		}
		sym.Trades++
		sym.Pnl += it.pnl

		key := utils.MonthKey(it.closedAt)
		month, ok := byMonth[key]
		if !ok {
			month = &models.MonthPnl{Month: key}
			byMonth[key] = month
		}
		month.Trades++
		month.Pnl += it.pnl

		// Одна точка на день: накопленный PNL на конец дня
		cumulative += it.pnl
		day := utils.GetDayStartFrom(it.closedAt)
		if n := len(data.EquityCurve); n > 0 && data.EquityCurve[n-1].Date.Equal(day) {
			data.EquityCurve[n-1].Cumulative = utils.Round2(cumulative)
		} else {
			data.EquityCurve = append(data.EquityCurve, models.EquityPoint{Date: day, Cumulative: utils.Round2(cumulative)})
		}
	}

	for _, sym := range bySymbol {
		sym.Pnl = utils.Round2(sym.Pnl)
		data.PnlBySymbol = append(data.PnlBySymbol, *sym)
	}
	sort.Slice(data.PnlBySymbol, func(i, j int) bool {
		if data.PnlBySymbol[i].Pnl == data.PnlBySymbol[j].Pnl {
			return data.PnlBySymbol[i].Symbol < data.PnlBySymbol[j].Symbol
		}
		return data.PnlBySymbol[i].Pnl > data.PnlBySymbol[j].Pnl
	})

	for _, month := range byMonth {
		month.Pnl = utils.Round2(month.Pnl)
		data.PnlByMonth = append(data.PnlByMonth, *month)
	}
	sort.Slice(data.PnlByMonth, func(i, j int) bool { return data.PnlByMonth[i].Month < data.PnlByMonth[j].Month })

	data.AverageWin = utils.Round2(utils.SafeDiv(grossProfit, float64(data.Wins)))
	data.AverageLoss = utils.Round2(-utils.SafeDiv(grossLoss, float64(data.Losses)))
	data.ProfitFactor = utils.Round2(utils.ProfitFactor(grossProfit, grossLoss))
	data.LargestWin = utils.Round2(data.LargestWin)
	data.LargestLoss = utils.Round2(data.LargestLoss)
	data.TotalRealized = utils.Round2(data.TotalRealized)
	return data
}
