// Package model holds the domain types shared across the ingestion,
// feature, event, signal and tracker stages.
package model

import "strings"

// Timeframe is a candle period in seconds. 60 = 1m, 300 = 5m, 900 = 15m,
// 3600 = 1h.
type Timeframe int

// CanonicalSymbol upper-cases a symbol so "btcusdt" and "BTCUSDT" key the
// same raw-store entry.
func CanonicalSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
