package rawstore

import "strconv"

// Key builders for the Raw Store entities in spec.md §3.2. Centralized here
// so ingestion writers and feature-engine readers never disagree on a
// key's shape.

func KlineKey(symbol string, tf int) string {
	return "kline:" + strconv.Itoa(tf) + ":" + symbol
}

func KlinesKey(symbol string, tf int) string {
	return "klines:" + strconv.Itoa(tf) + ":" + symbol
}

func DepthKey(symbol string) string {
	return "depth:" + symbol
}

func MarkPriceKey(symbol string) string {
	return "mark_price:" + symbol
}

func LiquidationsKey(symbol string) string {
	return "liquidations:" + symbol
}

func OIHistoryKey(symbol string) string {
	return "oi_history:" + symbol
}

func FundingHistoryKey(symbol string) string {
	return "funding_history:" + symbol
}

func FeaturesKey(symbol string, tf int) string {
	return "features:" + strconv.Itoa(tf) + ":" + symbol
}

// FeaturesDefaultKey is the primary-timeframe mirror written in addition to
// FeaturesKey, per spec.md §3.2's invariant.
func FeaturesDefaultKey(symbol string) string {
	return "features:" + symbol
}
