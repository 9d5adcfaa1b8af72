package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalengine/internal/model"
)

func TestTimeframeDirectionBreakoutDominates(t *testing.T) {
	f := model.Features{Breakout: "bullish", StructureState: "downtrend"}
	assert.Equal(t, model.Long, TimeframeDirection(f)) // breakout +2 beats structure -1
}

func TestCheckAlignmentRequiresMajority(t *testing.T) {
	perTF := map[int]model.Features{
		60:   {EMASlope: 0.01},
		300:  {EMASlope: 0.01},
		900:  {EMASlope: -0.01},
		3600: {EMASlope: 0.01},
	}
	a := CheckAlignment(perTF, 3)
	assert.True(t, a.Aligned)
	assert.Equal(t, model.Long, a.Direction)
	assert.Equal(t, 3, a.AlignedCount)
}

func TestCheckAlignmentFullBonus(t *testing.T) {
	perTF := map[int]model.Features{
		60:  {EMASlope: 0.01},
		300: {EMASlope: 0.01},
		900: {EMASlope: 0.01},
	}
	a := CheckAlignment(perTF, 2)
	assert.InDelta(t, 1.0, a.MTFScore, 1e-9) // 3/3=1.0 + 0.2 bonus, capped at 1.0
}

func TestCheckAlignmentEmptyIsUnaligned(t *testing.T) {
	a := CheckAlignment(map[int]model.Features{}, 2)
	assert.False(t, a.Aligned)
}
