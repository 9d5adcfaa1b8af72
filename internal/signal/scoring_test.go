package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalengine/internal/model"
)

func TestScoreBullishComposite(t *testing.T) {
	f := model.Features{
		EMASlope:       0.01,
		VWAPDistance:   0.02,
		LiqRatio:       0.5,
		RangeExpansion: 2.0,
		OIDelta:        0.05,
		StructureState: "uptrend",
		Breakout:       "bullish",
	}
	events := []model.Event{
		{Type: model.EventStructureBreakout, Bias: "bullish"},
		{Type: model.EventOIExpansion},
	}

	result := Score(f, events)

	assert.Equal(t, model.Long, result.Direction)
	assert.Greater(t, result.Score, 0.5)
	assert.Greater(t, result.Votes.Bull, result.Votes.Bear)
}

func TestScoreTiesBreakLong(t *testing.T) {
	result := Score(model.Features{}, nil)
	assert.Equal(t, model.Long, result.Direction)
}

func TestScoreLiquidationBearishPressure(t *testing.T) {
	f := model.Features{LiqRatio: 2.0}
	result := Score(f, nil)
	assert.InDelta(t, 0.5, result.Components["liquidation"], 1e-9)
	assert.Equal(t, 1, result.Votes.Bear)
}

func TestScoreOIContractionHalvesScore(t *testing.T) {
	expanding := Score(model.Features{OIDelta: 0.05}, nil)
	contracting := Score(model.Features{OIDelta: -0.05}, nil)
	assert.InDelta(t, expanding.Components["oi"]/2, contracting.Components["oi"], 1e-9)
}
