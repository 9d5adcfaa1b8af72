package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalengine/internal/model"
	"signalengine/internal/rawstore"
)

type fakeSink struct {
	recorded []model.TrackedSignal
	openRows []model.TrackedSignal
}

func (f *fakeSink) AppendSignal(model.Signal)                      {}
func (f *fakeSink) AppendEvent(model.Event)                         {}
func (f *fakeSink) AppendSnapshot(string, int, model.Features)      {}
func (f *fakeSink) RecordPerformance(t model.TrackedSignal)         { f.recorded = append(f.recorded, t) }
func (f *fakeSink) ListOpen() ([]model.TrackedSignal, error)        { return f.openRows, nil }
func (f *fakeSink) Close() error                                    { return nil }

func TestRegisterSignalComputesLongTPSL(t *testing.T) {
	store := rawstore.New()
	sink := &fakeSink{}
	tr := New(Config{TPAtrMultiplier: 2, SLAtrMultiplier: 1}, store, sink)

	tracked := tr.RegisterSignal("BTCUSDT", model.Long, 0.8, 100, 2, nil)

	assert.Equal(t, 104.0, tracked.TPPrice)
	assert.Equal(t, 98.0, tracked.SLPrice)
	assert.True(t, tr.HasOpenSignal("BTCUSDT"))
}

func TestRegisterSignalReversesOpposite(t *testing.T) {
	store := rawstore.New()
	sink := &fakeSink{}
	tr := New(Config{TPAtrMultiplier: 2, SLAtrMultiplier: 1}, store, sink)

	tr.RegisterSignal("ETHUSDT", model.Long, 0.8, 100, 2, nil)
	tr.RegisterSignal("ETHUSDT", model.Short, 0.8, 105, 2, nil)

	// open(long), reversed(long), open(short)
	require.Len(t, sink.recorded, 3)
	assert.Equal(t, model.OutcomeReversed, sink.recorded[1].Outcome)
}

func TestCheckOneClosesOnTPHit(t *testing.T) {
	store := rawstore.New()
	sink := &fakeSink{}
	tr := New(Config{TPAtrMultiplier: 2, SLAtrMultiplier: 1, PrimaryTimeframe: 60}, store, sink)
	tr.RegisterSignal("SOLUSDT", model.Long, 0.8, 100, 2, nil)

	store.SetScalar(rawstore.MarkPriceKey("SOLUSDT"), model.MarkPrice{Symbol: "SOLUSDT", Mark: 105}, 0)
	tr.checkOne("SOLUSDT", time.Now().Unix())

	assert.False(t, tr.HasOpenSignal("SOLUSDT"))
	require.Len(t, sink.recorded, 2)
	assert.Equal(t, model.OutcomeTPHit, sink.recorded[1].Outcome)
	assert.InDelta(t, 5.0, sink.recorded[1].PnLPct, 1e-9)
}

func TestHasOpenSignalExpiresOnTTL(t *testing.T) {
	store := rawstore.New()
	sink := &fakeSink{}
	tr := New(Config{TPAtrMultiplier: 2, SLAtrMultiplier: 1, DefaultTTLSeconds: 1}, store, sink)
	tracked := tr.RegisterSignal("BNBUSDT", model.Long, 0.8, 100, 2, nil)
	tr.mu.Lock()
	tr.open["BNBUSDT"].OpenedAt = time.Now().Unix() - 10
	tr.mu.Unlock()
	_ = tracked

	assert.False(t, tr.HasOpenSignal("BNBUSDT"))
	require.Len(t, sink.recorded, 2)
	assert.Equal(t, model.OutcomeExpired, sink.recorded[1].Outcome)
}

func TestRecoverOnStartupRestoresUnexpired(t *testing.T) {
	store := rawstore.New()
	sink := &fakeSink{openRows: []model.TrackedSignal{
		{Symbol: "XRPUSDT", Direction: model.Long, OpenedAt: time.Now().Unix(), TTLSeconds: 3600, Outcome: model.OutcomeOpen, EntryPrice: 1},
		{Symbol: "ADAUSDT", Direction: model.Long, OpenedAt: time.Now().Unix() - 7200, TTLSeconds: 3600, Outcome: model.OutcomeOpen, EntryPrice: 1},
	}}
	tr := New(Config{}, store, sink)

	require.NoError(t, tr.RecoverOnStartup())
	assert.True(t, tr.HasOpenSignal("XRPUSDT"))
	assert.False(t, tr.HasOpenSignal("ADAUSDT"))
}
