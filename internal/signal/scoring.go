// Package signal implements the Signal Engine of spec.md §4.5: composite
// scoring, multi-timeframe confluence gating, and signal emission.
package signal

import (
	"math"

	"signalengine/internal/model"
)

// Weights, summing to 1.0, per spec.md §4.5.1.
const (
	weightTrend        = 0.20
	weightLiquidation  = 0.15
	weightVolatility   = 0.15
	weightVWAP         = 0.10
	weightOI           = 0.15
	weightStructure    = 0.15
	weightEventQuality = 0.10
)

// Votes tallies directional votes across the scoring components and
// trigger events, per spec.md §4.5.1's direction-vote rule.
type Votes struct {
	Bull int
	Bear int
}

// ScoreResult is the output of Score: a composite value in [0, 1], a
// direction, and the per-component breakdown for observability/tests.
type ScoreResult struct {
	Score      float64
	Direction  model.Direction
	Components map[string]float64
	Votes      Votes
}

// Score evaluates features and buffered trigger events into a composite
// signal score, per spec.md §4.5.1. Ties in the direction vote break long.
func Score(f model.Features, events []model.Event) ScoreResult {
	var votes Votes

	// Trend (EMA slope)
	var trendScore float64
	switch {
	case f.EMASlope > 0.001:
		trendScore = math.Min(math.Abs(f.EMASlope)/0.01, 1.0)
		votes.Bull++
	case f.EMASlope < -0.001:
		trendScore = math.Min(math.Abs(f.EMASlope)/0.01, 1.0)
		votes.Bear++
	}

	// VWAP distance
	var vwapScore float64
	switch {
	case f.VWAPDistance > 0:
		vwapScore = math.Min(math.Abs(f.VWAPDistance)/0.02, 1.0)
		votes.Bull++
	case f.VWAPDistance < 0:
		vwapScore = math.Min(math.Abs(f.VWAPDistance)/0.02, 1.0)
		votes.Bear++
	}

	// Liquidation bias
	var liqScore float64
	switch {
	case f.LiqRatio > 1.3:
		liqScore = math.Min((f.LiqRatio-1)/2.0, 1.0)
		votes.Bear++ // longs getting liquidated -> bearish pressure
	case f.LiqRatio > 0 && f.LiqRatio < 0.7:
		liqScore = math.Min((1-f.LiqRatio)/0.5, 1.0)
		votes.Bull++ // shorts getting liquidated -> bullish pressure
	default:
		liqScore = 0.2
	}

	// Volatility expansion
	volScore := math.Min(math.Max(f.RangeExpansion-1, 0)/2.0, 1.0)

	// OI expansion
	oiScore := math.Min(math.Abs(f.OIDelta)*10, 1.0)
	if f.OIDelta < -0.02 {
		oiScore *= 0.5
	}

	// Structure
	var structureScore float64
	switch f.StructureState {
	case "uptrend":
		structureScore = 0.6
		votes.Bull++
	case "downtrend":
		structureScore = 0.6
		votes.Bear++
	}
	switch f.Breakout {
	case "bullish":
		structureScore = math.Min(structureScore+0.4, 1.0)
		votes.Bull++
	case "bearish":
		structureScore = math.Min(structureScore+0.4, 1.0)
		votes.Bear++
	}

	// Event quality: more unique event types = stronger signal
	uniqueTypes := make(map[model.EventType]struct{})
	for _, e := range events {
		uniqueTypes[e.Type] = struct{}{}
	}
	eventQualityScore := math.Min(float64(len(uniqueTypes))/4.0, 1.0)

	for _, e := range events {
		switch e.Direction() {
		case "bullish":
			votes.Bull++
		case "bearish":
			votes.Bear++
		}
	}

	direction := model.Long
	if votes.Bear > votes.Bull {
		direction = model.Short
	}

	score := weightTrend*trendScore +
		weightLiquidation*liqScore +
		weightVolatility*volScore +
		weightVWAP*vwapScore +
		weightOI*oiScore +
		weightStructure*structureScore +
		weightEventQuality*eventQualityScore

	return ScoreResult{
		Score:     score,
		Direction: direction,
		Components: map[string]float64{
			"trend":         trendScore,
			"liquidation":   liqScore,
			"volatility":    volScore,
			"vwap":          vwapScore,
			"oi":            oiScore,
			"structure":     structureScore,
			"event_quality": eventQualityScore,
		},
		Votes: votes,
	}
}
