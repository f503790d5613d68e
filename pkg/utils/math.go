package utils

import (
	"math"
)

// math.go - математические утилиты для журнала сделок
//
// Все функции чистые, без побочных эффектов.

// CalculatePNL рассчитывает PNL позиции.
//
// Формулы:
//   - Long PNL = (P_close - P_open) × qty
//   - Short PNL = (P_open - P_close) × qty
//
// Для неизвестной стороны или qty <= 0 возвращает 0.
func CalculatePNL(side string, entryPrice, exitPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	switch side {
	case "long":
		return (exitPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - exitPrice) * quantity
	default:
		return 0
	}
}

// RoundTo округляет значение до decimals знаков после запятой
func RoundTo(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(value*pow) / pow
}

// Round2 округляет денежные значения до 2 знаков
func Round2(value float64) float64 {
	return RoundTo(value, 2)
}

// WinRate возвращает процент прибыльных сделок (0-100)
func WinRate(wins, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// ProfitFactor - отношение суммарной прибыли к суммарному убытку.
//
// grossLoss передаётся как положительное число. Если убытков нет,
// а прибыль есть, возвращается grossProfit (конечное значение для JSON).
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss <= 0 {
		if grossProfit > 0 {
			return grossProfit
		}
		return 0
	}
	return grossProfit / grossLoss
}

// SafeDiv делит a на b, возвращая 0 при b == 0
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func Min(a, b float64) float64 {
	return math.Min(a, b)
}

func Max(a, b float64) float64 {
	return math.Max(a, b)
}
