// Package common: pluralize.go форматирует суммы очков для CLI и описаний.
package common

import "fmt"

// PluralizePoints возвращает "point" для 1 и -1, иначе "points".
func PluralizePoints(n int64) string {
	if n == 1 || n == -1 {
		return "point"
	}
	return "points"
}

// FormatPoints создаёт строку вида "150 points".
func FormatPoints(n int64) string {
	return fmt.Sprintf("%d %s", n, PluralizePoints(n))
}

// FormatPointsDelta создаёт строку вида "+100 points" или "-50 points".
// Знак добавляется автоматически.
//
// Примеры:
//
//	FormatPointsDelta(100) → "+100 points"
//	FormatPointsDelta(-50) → "-50 points"
//	FormatPointsDelta(1)   → "+1 point"
func FormatPointsDelta(n int64) string {
	if n >= 0 {
		return fmt.Sprintf("+%d %s", n, PluralizePoints(n))
	}
	return fmt.Sprintf("%d %s", n, PluralizePoints(n))
}
