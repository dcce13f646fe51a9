// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с временем и днями квот, форматирование очков.
package common

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// DayLayout формат ключа дня для дневных квот
const DayLayout = "2006-01-02"

// LoadLocation загружает часовой пояс приложения.
// Если пояс не найден в tzdata, используем UTC и пишем предупреждение.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).Warnf("Часовой пояс %q не найден, используем UTC", name)
		return time.UTC
	}
	return loc
}

// DayKey возвращает календарный день момента t в поясе loc.
// Формат: 2006-01-02
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// StartOfDay возвращает полночь того же дня в поясе loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatDateTime форматирует время в "2006-01-02 15:04" для вывода в CLI.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// HoursBetween возвращает возраст в часах между from и to (не меньше нуля).
func HoursBetween(from, to time.Time) float64 {
	h := to.Sub(from).Hours()
	if h < 0 {
		return 0
	}
	return h
}
