// Package feature computes the derived indicators of spec.md §4.3 from
// bounded histories held in the Raw Store. Every function here is pure:
// given a snapshot of candles/history, it returns a value, with no I/O and
// no shared state, mirroring original_source/app/features/computations.py.
package feature

import (
	"math"

	"signalengine/internal/model"
)

// StructureState reports HH/HL uptrend, LL/LH downtrend, or neutral
// structure from the 3 most recent candles against the prior 3, per
// original_source/app/features/computations.py compute_higher_high_lower_low.
// candles must be newest-first; fewer than 4 candles yields neutral.
func StructureState(candles []model.Kline) string {
	if len(candles) < 4 {
		return "neutral"
	}

	recentHigh := maxHigh(candles[:3])
	recentLow := minLow(candles[:3])

	var prevHigh, prevLow float64
	if len(candles) >= 6 {
		prevHigh = maxHigh(candles[3:6])
		prevLow = minLow(candles[3:6])
	} else {
		last := candles[len(candles)-1]
		prevHigh = last.High
		prevLow = last.Low
	}

	hh := recentHigh > prevHigh
	ll := recentLow < prevLow
	hl := recentLow > prevLow
	lh := recentHigh < prevHigh

	switch {
	case hh && hl:
		return "uptrend"
	case ll && lh:
		return "downtrend"
	default:
		return "neutral"
	}
}

func maxHigh(candles []model.Kline) float64 {
	m := candles[0].High
	for _, c := range candles[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(candles []model.Kline) float64 {
	m := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}

// Breakout reports whether the latest close exceeds the high/low of the
// lookback window that precedes it (excluding the latest candle itself),
// per detect_breakout. Returns ("none", 0) when there isn't enough history.
func Breakout(candles []model.Kline, lookback int) (string, float64) {
	if len(candles) < lookback+1 {
		return "none", 0
	}
	history := candles[1 : lookback+1]
	latest := candles[0]

	highMax := history[0].High
	lowMin := history[0].Low
	for _, c := range history[1:] {
		if c.High > highMax {
			highMax = c.High
		}
		if c.Low < lowMin {
			lowMin = c.Low
		}
	}

	switch {
	case latest.Close > highMax:
		return "bullish", highMax
	case latest.Close < lowMin:
		return "bearish", lowMin
	default:
		return "none", 0
	}
}

// ATR is the average true range over period candles, per compute_atr.
// candles[0] is the latest; candles[i+1] supplies the previous close for
// candles[i]'s true range.
func ATR(candles []model.Kline, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	var sum float64
	for i := 0; i < period; i++ {
		c := candles[i]
		prevClose := candles[i+1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

// RangeExpansion is the ratio of the latest candle's range to the average
// range over the preceding period candles, per candle_range_expansion.
// Returns 1.0 (neutral) when there isn't enough history or the average is
// zero.
func RangeExpansion(candles []model.Kline, period int) float64 {
	if len(candles) < period+1 {
		return 1.0
	}
	latestRange := candles[0].High - candles[0].Low
	var sum float64
	for _, c := range candles[1 : period+1] {
		sum += c.High - c.Low
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1.0
	}
	return latestRange / avg
}

// EMA computes the exponential moving average over values in chronological
// (oldest-first) order, returning a series the same length as values.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1)
	ema := make([]float64, len(values))
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = values[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// EMASlope is the normalized slope of the EMA over the last lookback
// candles, per ema_slope. candles must be newest-first.
func EMASlope(candles []model.Kline, period, lookback int) float64 {
	need := period + lookback
	if len(candles) < need {
		return 0
	}
	window := candles[:need]
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[len(window)-1-i] = c.Close // chronological order
	}
	emaVals := EMA(closes, period)
	if len(emaVals) < lookback+1 {
		return 0
	}
	recent := emaVals[len(emaVals)-1]
	past := emaVals[len(emaVals)-1-lookback]
	mid := (recent + past) / 2
	if mid == 0 {
		return 0
	}
	return (recent - past) / mid
}

// VWAPDistance is the normalized distance of the latest close from the
// rolling VWAP over period candles, per compute_vwap_distance.
func VWAPDistance(candles []model.Kline, period int) float64 {
	if len(candles) < period {
		return 0
	}
	var cumPV, cumVol float64
	for _, c := range candles[:period] {
		typical := (c.High + c.Low + c.Close) / 3
		cumPV += typical * c.BaseVol
		cumVol += c.BaseVol
	}
	if cumVol == 0 {
		return 0
	}
	vwap := cumPV / cumVol
	if vwap == 0 {
		return 0
	}
	return (candles[0].Close - vwap) / vwap
}

// OIDelta is the fractional change in open interest over window samples,
// per compute_oi_delta. history must be newest-first.
func OIDelta(history []model.OIPoint, window int) float64 {
	if len(history) < 2 {
		return 0
	}
	idx := window
	if idx > len(history)-1 {
		idx = len(history) - 1
	}
	newest := history[0].OI
	oldest := history[idx].OI
	if oldest == 0 {
		return 0
	}
	return (newest - oldest) / oldest
}

// FundingZScore is the z-score of the latest funding rate against the
// newest window rates, the latest one included, per compute_funding_zscore.
func FundingZScore(history []model.FundingPoint, window int) float64 {
	if window > len(history) {
		window = len(history)
	}
	if window < 5 {
		return 0
	}
	rates := make([]float64, window)
	var sum float64
	for i := 0; i < window; i++ {
		rates[i] = history[i].FundingRate
		sum += rates[i]
	}
	mean := sum / float64(window)
	var variance float64
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(window)
	std := math.Sqrt(variance)
	if std == 0 {
		std = 1e-9
	}
	return (rates[0] - mean) / std
}

// LiquidationStats tallies long-vs-short liquidation counts and notional
// over the window, per compute_liquidation_ratio. A SELL force-order
// liquidates a long position; a BUY liquidates a short.
func LiquidationStats(liqs []model.Liquidation, window int) (longLiqs, shortLiqs int, ratio, totalUSD float64) {
	if window > len(liqs) {
		window = len(liqs)
	}
	for _, l := range liqs[:window] {
		usd := l.Qty * l.Price
		totalUSD += usd
		if l.Side == model.LiquidationSell {
			longLiqs++
		} else {
			shortLiqs++
		}
	}
	denom := shortLiqs
	if denom < 1 {
		denom = 1
	}
	ratio = float64(longLiqs) / float64(denom)
	return
}

// OrderbookImbalance is (bidVol-askVol)/(bidVol+askVol), per
// compute_orderbook_imbalance. Range [-1, 1].
func OrderbookImbalance(d model.Depth) float64 {
	var bidVol, askVol float64
	for _, b := range d.Bids {
		bidVol += b.Size
	}
	for _, a := range d.Asks {
		askVol += a.Size
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// WallPressure reports whether either book side carries a level whose size
// is at least thresholdMultiplier times the mean level size across both
// sides, per detect_wall_pressure.
func WallPressure(d model.Depth, thresholdMultiplier float64) (bidWall, askWall bool) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return false, false
	}
	var sum float64
	n := len(d.Bids) + len(d.Asks)
	for _, b := range d.Bids {
		sum += b.Size
	}
	for _, a := range d.Asks {
		sum += a.Size
	}
	mean := sum / float64(n)
	threshold := mean * thresholdMultiplier

	for _, b := range d.Bids {
		if b.Size >= threshold {
			bidWall = true
			break
		}
	}
	for _, a := range d.Asks {
		if a.Size >= threshold {
			askWall = true
			break
		}
	}
	return
}
