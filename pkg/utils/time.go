package utils

import (
	"fmt"
	"strings"
	"time"
)

// time.go - утилиты для работы со временем
//
// Используются для агрегации аналитики по дням/месяцам, фильтрации
// сделок по периодам и разбора временных меток брокеров.

// IST - часовой пояс индийских бирж (NSE/BSE/MCX), в нём Upstox отдаёт время сделок
var IST = time.FixedZone("IST", 5*3600+1800)

// ============================================================
// Границы периодов
// ============================================================

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetWeekStartFrom возвращает понедельник 00:00:00 UTC недели t
func GetWeekStartFrom(t time.Time) time.Time {
	day := GetDayStartFrom(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // воскресенье - последний день недели
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// GetMonthStartFrom возвращает 1-е число месяца 00:00:00 UTC
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetYearStartFrom возвращает 1 января 00:00:00 UTC
func GetYearStartFrom(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// ============================================================
// Ключ агрегации
// ============================================================

// MonthKey возвращает месяц в формате YYYY-MM (UTC)
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ============================================================
// Диапазоны
// ============================================================

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// PeriodType - период фильтрации аналитики
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodAll   PeriodType = "all"
)

// ParsePeriod разбирает строку периода, пустая строка означает "all"
func ParsePeriod(s string) (PeriodType, error) {
	switch p := PeriodType(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("invalid period %q", s)
	}
}

// PeriodRange возвращает диапазон периода относительно now
func PeriodRange(period PeriodType, now time.Time) TimeRange {
	end := now.UTC()
	switch period {
	case PeriodDay:
		return TimeRange{Start: GetDayStartFrom(now), End: end}
	case PeriodWeek:
		return TimeRange{Start: GetWeekStartFrom(now), End: end}
	case PeriodMonth:
		return TimeRange{Start: GetMonthStartFrom(now), End: end}
	case PeriodYear:
		return TimeRange{Start: GetYearStartFrom(now), End: end}
	default:
		return TimeRange{Start: time.Time{}, End: end}
	}
}

// ============================================================
// Временные метки брокеров
// ============================================================

// brokerTimeLayouts - форматы, в которых брокеры отдают время сделок
var brokerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"02-Jan-2006 15:04:05",
}

// ParseBrokerTime разбирает временную метку сделки брокера.
// Метки без смещения трактуются в loc (для Upstox - IST). Результат в UTC.
func ParseBrokerTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range brokerTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format %q", value)
}

// ============================================================
// Форматирование
// ============================================================

// FormatDuration форматирует продолжительность в человекочитаемый вид
//
// Примеры:
//   - "45s"
//   - "5m30s"
//   - "2h15m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0 && seconds > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
