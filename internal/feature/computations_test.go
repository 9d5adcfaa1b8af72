package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signalengine/internal/model"
)

func mkCandle(h, l, c, vol float64) model.Kline {
	return model.Kline{High: h, Low: l, Close: c, BaseVol: vol, Closed: true}
}

func TestStructureStateUptrend(t *testing.T) {
	// newest-first: recent 3 candles make higher highs/lows than the next 3
	candles := []model.Kline{
		mkCandle(110, 105, 108, 1),
		mkCandle(109, 104, 107, 1),
		mkCandle(108, 103, 106, 1),
		mkCandle(100, 95, 98, 1),
		mkCandle(99, 94, 97, 1),
		mkCandle(98, 93, 96, 1),
	}
	assert.Equal(t, "uptrend", StructureState(candles))
}

func TestStructureStateNeutralOnShortHistory(t *testing.T) {
	assert.Equal(t, "neutral", StructureState([]model.Kline{mkCandle(1, 1, 1, 1)}))
}

func TestBreakoutBullish(t *testing.T) {
	history := make([]model.Kline, 0, 21)
	history = append(history, mkCandle(120, 115, 119, 1)) // latest, breaks above
	for i := 0; i < 20; i++ {
		history = append(history, mkCandle(110, 100, 105, 1))
	}
	breakout, level := Breakout(history, 20)
	assert.Equal(t, "bullish", breakout)
	assert.Equal(t, 110.0, level)
}

func TestBreakoutNoneWithoutEnoughHistory(t *testing.T) {
	breakout, _ := Breakout([]model.Kline{mkCandle(1, 1, 1, 1)}, 20)
	assert.Equal(t, "none", breakout)
}

func TestATR(t *testing.T) {
	candles := []model.Kline{
		mkCandle(110, 100, 105, 1),
		mkCandle(108, 98, 104, 1),
	}
	atr := ATR(candles, 1)
	assert.InDelta(t, 10.0, atr, 1e-9)
}

func TestRangeExpansionDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1.0, RangeExpansion([]model.Kline{mkCandle(1, 1, 1, 1)}, 14))
}

func TestEMASlopePositiveOnUptrend(t *testing.T) {
	candles := make([]model.Kline, 0, 12)
	for i := 0; i < 12; i++ {
		// newest-first, with the newest close highest: uptrend
		candles = append(candles, mkCandle(100-float64(i), 90-float64(i), 100-float64(i), 1))
	}
	slope := EMASlope(candles, 9, 3)
	assert.Greater(t, slope, 0.0)
}

func TestVWAPDistance(t *testing.T) {
	candles := []model.Kline{
		mkCandle(110, 100, 105, 10),
		mkCandle(110, 100, 105, 10),
	}
	d := VWAPDistance(candles, 2)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestOIDelta(t *testing.T) {
	hist := []model.OIPoint{{OI: 110}, {OI: 100}}
	assert.InDelta(t, 0.1, OIDelta(hist, 10), 1e-9)
}

func TestFundingZScoreNeedsMinSamples(t *testing.T) {
	hist := []model.FundingPoint{{FundingRate: 0.01}, {FundingRate: 0.01}}
	assert.Equal(t, 0.0, FundingZScore(hist, 50))
}

func TestLiquidationStatsRatio(t *testing.T) {
	liqs := []model.Liquidation{
		{Side: model.LiquidationSell, Qty: 1, Price: 100},
		{Side: model.LiquidationSell, Qty: 1, Price: 100},
		{Side: model.LiquidationBuy, Qty: 1, Price: 100},
	}
	long, short, ratio, usd := LiquidationStats(liqs, 10)
	assert.Equal(t, 2, long)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2.0, ratio)
	assert.Equal(t, 300.0, usd)
}

func TestOrderbookImbalance(t *testing.T) {
	d := model.Depth{
		Bids: []model.DepthLevel{{Price: 100, Size: 10}},
		Asks: []model.DepthLevel{{Price: 101, Size: 5}},
	}
	imbalance := OrderbookImbalance(d)
	assert.InDelta(t, 1.0/3.0, imbalance, 1e-9)
}

func TestWallPressureDetectsBidWall(t *testing.T) {
	d := model.Depth{
		Bids: []model.DepthLevel{{Price: 100, Size: 100}, {Price: 99, Size: 1}},
		Asks: []model.DepthLevel{{Price: 101, Size: 1}, {Price: 102, Size: 1}},
	}
	// mean level size is 103/4 = 25.75, so the wall threshold is 77.25
	bidWall, askWall := WallPressure(d, 3.0)
	assert.True(t, bidWall)
	assert.False(t, askWall)
}
