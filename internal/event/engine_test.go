package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalengine/internal/model"
	"signalengine/internal/rawstore"
)

func setupFeatures(t *testing.T, store *rawstore.Store, symbol string, f model.Features) {
	t.Helper()
	f.Symbol = symbol
	store.SetScalar(rawstore.FeaturesDefaultKey(symbol), f, 0)
}

func TestScanSymbolEmitsATRExpansion(t *testing.T) {
	store := rawstore.New()
	q := NewQueue(10)
	setupFeatures(t, store, "BTCUSDT", model.Features{RangeExpansion: 3.0})

	e := New(Config{Symbols: []string{"BTCUSDT"}, ATRExpansionThreshold: 2.0}, store, q)
	e.scanSymbol("BTCUSDT")

	select {
	case ev := <-q.C():
		assert.Equal(t, model.EventATRExpansion, ev.Type)
	default:
		t.Fatal("expected an event on the queue")
	}
}

func TestScanSymbolBreakoutOnlyOnChange(t *testing.T) {
	store := rawstore.New()
	q := NewQueue(10)
	setupFeatures(t, store, "ETHUSDT", model.Features{Breakout: "bullish", BreakoutLevel: 100})

	e := New(Config{Symbols: []string{"ETHUSDT"}}, store, q)
	e.scanSymbol("ETHUSDT") // first sight: breakout != prev("none") -> emits

	require.Len(t, q.ch, 1)
	<-q.C()

	// unchanged snapshot on next scan: no new breakout event
	e.scanSymbol("ETHUSDT")
	assert.Len(t, q.ch, 0)
}

func TestScanSymbolImbalanceFlipRequiresSignChangeAndMagnitude(t *testing.T) {
	store := rawstore.New()
	q := NewQueue(10)
	e := New(Config{Symbols: []string{"SOLUSDT"}, ImbalanceFlipThreshold: 0.3}, store, q)

	setupFeatures(t, store, "SOLUSDT", model.Features{OBImbalance: -0.5})
	e.scanSymbol("SOLUSDT")
	assert.Len(t, q.ch, 0) // no prior snapshot, no flip yet

	setupFeatures(t, store, "SOLUSDT", model.Features{OBImbalance: 0.4})
	e.scanSymbol("SOLUSDT")
	require.Len(t, q.ch, 1)
	ev := <-q.C()
	assert.Equal(t, model.EventImbalanceFlip, ev.Type)
	assert.Equal(t, "bullish", ev.Bias)
}

func TestQueueDropsOnFull(t *testing.T) {
	q := NewQueue(1)
	dropped := 0
	q.Dropped = func(string) { dropped++ }

	q.Push(model.Event{Type: model.EventOIExpansion})
	q.Push(model.Event{Type: model.EventOIExpansion})

	assert.Equal(t, 1, dropped)
}
