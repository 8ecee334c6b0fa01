// Package validation содержит функции проверки входных данных бронирования и расчётов.
package validation

import "unicode"

// MinutesPerDay ограничивает минуты внутри одних суток.
const MinutesPerDay = 24 * 60

// IsValidOrderReference проверяет номер заказа оформления по алгоритму Луна.
func IsValidOrderReference(ref string) bool {
	if ref == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(ref) - 1; i >= 0; i-- {
		ch := rune(ref[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// IsValidStartMinute проверяет, что время начала лежит внутри суток.
func IsValidStartMinute(start int) bool {
	return start >= 0 && start < MinutesPerDay
}

// IsValidRange проверяет, что интервал [start, end) непустой и не выходит за пределы суток.
func IsValidRange(start, end int) bool {
	return start >= 0 && start < end && end <= MinutesPerDay
}

// IsValidCurrency проверяет трёхбуквенный код валюты в верхнем регистре (ISO 4217).
func IsValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, ch := range code {
		if ch < 'A' || ch > 'Z' {
			return false
		}
	}
	return true
}

// IsValidFeePercentage проверяет, что комиссия платформы лежит в диапазоне [0, 100].
func IsValidFeePercentage(pct float64) bool {
	return pct >= 0 && pct <= 100
}
