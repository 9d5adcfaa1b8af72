package signal

import (
	"signalengine/internal/model"
)

// Alignment is the result of a multi-timeframe confluence check, per
// spec.md §4.5 Gate C.
type Alignment struct {
	Aligned      bool
	Direction    model.Direction
	AlignedCount int
	Total        int
	MTFScore     float64
	Details      map[int]model.Direction
}

// TimeframeDirection votes a single timeframe's direction from four
// signals with integer weight, per spec.md §4.5 Gate C: EMA slope (±1 when
// |slope|>0.001), VWAP position (±1 when |distance|>0.005),
// structure_state (±1 for up/down), breakout (±2 for bullish/bearish).
// Returns "" (neutral) on a tie.
func TimeframeDirection(f model.Features) model.Direction {
	var bull, bear int

	switch {
	case f.EMASlope > 0.001:
		bull++
	case f.EMASlope < -0.001:
		bear++
	}

	switch {
	case f.VWAPDistance > 0.005:
		bull++
	case f.VWAPDistance < -0.005:
		bear++
	}

	switch f.StructureState {
	case "uptrend":
		bull++
	case "downtrend":
		bear++
	}

	switch f.Breakout {
	case "bullish":
		bull += 2
	case "bearish":
		bear += 2
	}

	switch {
	case bull > bear:
		return model.Long
	case bear > bull:
		return model.Short
	default:
		return ""
	}
}

// CheckAlignment computes overall alignment across the per-timeframe
// features supplied in perTF, per spec.md §4.5 Gate C. Alignment requires
// at least minAligned timeframes to agree and for that count to strictly
// exceed the opposing count. mtf_score is aligned_count/total plus a 0.2
// bonus when all ≥3 configured timeframes agree, capped at 1.0.
func CheckAlignment(perTF map[int]model.Features, minAligned int) Alignment {
	details := make(map[int]model.Direction, len(perTF))
	var bullCount, bearCount int
	for tf, f := range perTF {
		d := TimeframeDirection(f)
		details[tf] = d
		switch d {
		case model.Long:
			bullCount++
		case model.Short:
			bearCount++
		}
	}

	total := len(perTF)
	if total == 0 {
		return Alignment{Direction: "", Details: details}
	}

	var aligned bool
	var direction model.Direction
	var alignedCount int

	switch {
	case bullCount >= minAligned && bullCount > bearCount:
		aligned = true
		direction = model.Long
		alignedCount = bullCount
	case bearCount >= minAligned && bearCount > bullCount:
		aligned = true
		direction = model.Short
		alignedCount = bearCount
	default:
		alignedCount = bullCount
		if bearCount > alignedCount {
			alignedCount = bearCount
		}
	}

	strength := float64(alignedCount) / float64(total)
	bonus := 0.0
	if alignedCount == total && total >= 3 {
		bonus = 0.2
	}
	mtfScore := strength + bonus
	if mtfScore > 1.0 {
		mtfScore = 1.0
	}

	return Alignment{
		Aligned:      aligned,
		Direction:    direction,
		AlignedCount: alignedCount,
		Total:        total,
		MTFScore:     mtfScore,
		Details:      details,
	}
}
