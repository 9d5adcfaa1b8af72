package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalengine/internal/event"
	"signalengine/internal/model"
	"signalengine/internal/rawstore"
	"signalengine/internal/tracker"
)

type fakeSink struct {
	signals []model.Signal
}

func (f *fakeSink) AppendSignal(s model.Signal)                 { f.signals = append(f.signals, s) }
func (f *fakeSink) AppendEvent(model.Event)                      {}
func (f *fakeSink) AppendSnapshot(string, int, model.Features)   {}
func (f *fakeSink) RecordPerformance(model.TrackedSignal)        {}
func (f *fakeSink) ListOpen() ([]model.TrackedSignal, error)     { return nil, nil }
func (f *fakeSink) Close() error                                 { return nil }

type fakeNotifier struct {
	enqueued []model.Signal
}

func (f *fakeNotifier) Enqueue(s model.Signal) { f.enqueued = append(f.enqueued, s) }

func strongBullishFeatures() model.Features {
	return model.Features{
		EMASlope:       0.01,
		VWAPDistance:   0.02,
		LiqRatio:       0.5,
		RangeExpansion: 3.0,
		OIDelta:        0.05,
		StructureState: "uptrend",
		Breakout:       "bullish",
		ATR:            2,
	}
}

func TestEvaluateEmitsAndArmsSignal(t *testing.T) {
	store := rawstore.New()
	q := event.NewQueue(10)
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	tr := tracker.New(tracker.Config{TPAtrMultiplier: 2, SLAtrMultiplier: 1, PrimaryTimeframe: 60}, store, sink)

	store.SetScalar(rawstore.FeaturesDefaultKey("BTCUSDT"), strongBullishFeatures(), 0)
	store.SetScalar(rawstore.KlineKey("BTCUSDT", 60), model.Kline{Close: 100}, 0)

	e := New(Config{SignalScoreThreshold: 0.1, PrimaryTimeframe: 60}, store, q, tr, sink, notifier, nil)

	sig, ok := e.EvaluateNow("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, model.Long, sig.Direction)
	assert.Equal(t, 104.0, sig.TPPrice) // entry 100 + atr 2 * tpMult 2
	require.Len(t, sink.signals, 1)
	require.Len(t, notifier.enqueued, 1)
	assert.True(t, tr.HasOpenSignal("BTCUSDT"))
}

func TestEvaluateGateAAbortsWhenAlreadyOpen(t *testing.T) {
	store := rawstore.New()
	q := event.NewQueue(10)
	sink := &fakeSink{}
	tr := tracker.New(tracker.Config{}, store, sink)
	tr.RegisterSignal("ETHUSDT", model.Long, 0.9, 100, 2, nil)

	e := New(Config{SignalScoreThreshold: 0.0}, store, q, tr, sink, nil, nil)
	_, ok := e.EvaluateNow("ETHUSDT")
	assert.False(t, ok)
}

func TestEvaluateGateBAbortsWithoutFeatures(t *testing.T) {
	store := rawstore.New()
	q := event.NewQueue(10)
	sink := &fakeSink{}
	tr := tracker.New(tracker.Config{}, store, sink)

	e := New(Config{SignalScoreThreshold: 0.0}, store, q, tr, sink, nil, nil)
	_, ok := e.EvaluateNow("SOLUSDT")
	assert.False(t, ok)
}

func TestEvaluateGateDAbortsBelowThreshold(t *testing.T) {
	store := rawstore.New()
	q := event.NewQueue(10)
	sink := &fakeSink{}
	tr := tracker.New(tracker.Config{}, store, sink)
	store.SetScalar(rawstore.FeaturesDefaultKey("ADAUSDT"), model.Features{}, 0)

	e := New(Config{SignalScoreThreshold: 0.9}, store, q, tr, sink, nil, nil)
	_, ok := e.EvaluateNow("ADAUSDT")
	assert.False(t, ok)
}
