package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPrice renders an amount stored in paise as rupees with two decimals.
func FormatPrice(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("₹%s%d.%02d", sign, paise/100, paise%100)
}

// ParsePaise parses a non-negative integer amount in paise as typed into admin forms.
func ParsePaise(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}
