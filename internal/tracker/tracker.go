// Package tracker implements the TP/SL lifecycle state machine of
// spec.md §4.6: at most one open signal per symbol, armed with
// ATR-derived take-profit/stop-loss levels, resolved by a price-monitor
// loop or by registration of an opposite-direction signal.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signalengine/internal/model"
	"signalengine/internal/rawstore"
)

const maxClosed = 500

// Config carries the tracker's ATR multipliers and timing knobs.
type Config struct {
	TPAtrMultiplier    float64
	SLAtrMultiplier    float64
	DefaultTTLSeconds  int64
	PriceCheckInterval time.Duration
	PrimaryTimeframe   int
}

// Tracker owns the open-signals table (single logical writer: the Signal
// Engine's consumer registers, the price monitor closes) guarded by its own
// mutex since those are two separate goroutines.
type Tracker struct {
	cfg   Config
	store *rawstore.Store
	sink  model.Sink

	mu     sync.Mutex
	open   map[string]*model.TrackedSignal
	closed []model.TrackedSignal
}

// New builds a Tracker.
func New(cfg Config, store *rawstore.Store, sink model.Sink) *Tracker {
	if cfg.PriceCheckInterval <= 0 {
		cfg.PriceCheckInterval = time.Second
	}
	if cfg.DefaultTTLSeconds <= 0 {
		cfg.DefaultTTLSeconds = 3600
	}
	return &Tracker{cfg: cfg, store: store, sink: sink, open: make(map[string]*model.TrackedSignal)}
}

// HasOpenSignal reports whether symbol has an active tracked signal,
// resolving an inline TTL expiry as a side effect if found stale.
func (t *Tracker) HasOpenSignal(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.open[symbol]
	if !ok {
		return false
	}
	if sig.Expired(time.Now().Unix()) {
		t.closeLocked(sig, model.OutcomeExpired, sig.EntryPrice)
		return false
	}
	return sig.IsOpen()
}

// GetOpenSignal returns a copy of the open signal for symbol, if any.
func (t *Tracker) GetOpenSignal(symbol string) (model.TrackedSignal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.open[symbol]
	if !ok || !sig.IsOpen() {
		return model.TrackedSignal{}, false
	}
	return *sig, true
}

// RegisterSignal arms a new signal: computes TP/SL from ATR, closes any
// existing opposite-direction open signal as "reversed", and stores the
// new one as open.
func (t *Tracker) RegisterSignal(symbol string, direction model.Direction, score, entryPrice, atr float64, triggerEvents []model.EventType) model.TrackedSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	tpMult := t.cfg.TPAtrMultiplier
	slMult := t.cfg.SLAtrMultiplier

	var tp, sl float64
	if direction == model.Long {
		tp = entryPrice + atr*tpMult
		sl = entryPrice - atr*slMult
	} else {
		tp = entryPrice - atr*tpMult
		sl = entryPrice + atr*slMult
	}

	if existing, ok := t.open[symbol]; ok && existing.IsOpen() && existing.Direction != direction {
		t.closeLocked(existing, model.OutcomeReversed, entryPrice)
	}

	tracked := &model.TrackedSignal{
		Symbol:        symbol,
		Direction:     direction,
		Score:         score,
		EntryPrice:    entryPrice,
		TPPrice:       tp,
		SLPrice:       sl,
		ATRAtEntry:    atr,
		OpenedAt:      time.Now().Unix(),
		TTLSeconds:    t.cfg.DefaultTTLSeconds,
		Outcome:       model.OutcomeOpen,
		TriggerEvents: triggerEvents,
	}
	t.open[symbol] = tracked

	slog.Info("tracker: registered", "symbol", symbol, "direction", direction,
		"entry", entryPrice, "tp", tp, "sl", sl, "atr", atr)

	if t.sink != nil {
		t.sink.RecordPerformance(*tracked)
	}

	return *tracked
}

// CloseManual closes an open signal with outcome "manual".
func (t *Tracker) CloseManual(symbol string, closePrice float64) (model.TrackedSignal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.open[symbol]
	if !ok || !sig.IsOpen() {
		return model.TrackedSignal{}, false
	}
	t.closeLocked(sig, model.OutcomeManual, closePrice)
	return *sig, true
}

func (t *Tracker) closeLocked(sig *model.TrackedSignal, outcome model.Outcome, closePrice float64) {
	sig.Outcome = outcome
	sig.ClosePrice = closePrice
	sig.ClosedAt = time.Now().Unix()

	if sig.EntryPrice > 0 {
		raw := (closePrice - sig.EntryPrice) / sig.EntryPrice
		if sig.Direction == model.Long {
			sig.PnLPct = raw * 100
		} else {
			sig.PnLPct = -raw * 100
		}
	}

	slog.Info("tracker: closed", "symbol", sig.Symbol, "direction", sig.Direction,
		"outcome", outcome, "entry", sig.EntryPrice, "close", closePrice, "pnl_pct", sig.PnLPct)

	t.closed = append(t.closed, *sig)
	if len(t.closed) > maxClosed {
		t.closed = t.closed[len(t.closed)-maxClosed:]
	}
	delete(t.open, sig.Symbol)

	if t.sink != nil {
		t.sink.RecordPerformance(*sig)
	}
}

// RunPriceMonitor wakes every PriceCheckInterval and resolves open signals
// against current price, per spec.md §4.6's price-monitor operation.
func (t *Tracker) RunPriceMonitor(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PriceCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweepSafe()
		}
	}
}

func (t *Tracker) sweepSafe() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tracker: sweep panic", "recovered", r)
		}
	}()
	t.mu.Lock()
	symbols := make([]string, 0, len(t.open))
	for sym := range t.open {
		symbols = append(symbols, sym)
	}
	t.mu.Unlock()

	now := time.Now().Unix()
	for _, sym := range symbols {
		t.checkOne(sym, now)
	}
}

func (t *Tracker) checkOne(symbol string, now int64) {
	t.mu.Lock()
	sig, ok := t.open[symbol]
	if !ok || !sig.IsOpen() {
		t.mu.Unlock()
		return
	}
	if sig.Expired(now) {
		t.closeLocked(sig, model.OutcomeExpired, sig.EntryPrice)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	price := t.currentPrice(symbol)
	if price <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok = t.open[symbol]
	if !ok || !sig.IsOpen() {
		return
	}
	if sig.Direction == model.Long {
		switch {
		case price >= sig.TPPrice:
			t.closeLocked(sig, model.OutcomeTPHit, price)
		case price <= sig.SLPrice:
			t.closeLocked(sig, model.OutcomeSLHit, price)
		}
	} else {
		switch {
		case price <= sig.TPPrice:
			t.closeLocked(sig, model.OutcomeTPHit, price)
		case price >= sig.SLPrice:
			t.closeLocked(sig, model.OutcomeSLHit, price)
		}
	}
}

func (t *Tracker) currentPrice(symbol string) float64 {
	if v, ok := t.store.GetScalar(rawstore.MarkPriceKey(symbol)); ok {
		if mp, ok := v.(model.MarkPrice); ok && mp.Mark > 0 {
			return mp.Mark
		}
	}
	if v, ok := t.store.GetScalar(rawstore.KlineKey(symbol, t.cfg.PrimaryTimeframe)); ok {
		if k, ok := v.(model.Kline); ok {
			return k.Close
		}
	}
	return 0
}

// RecoverOnStartup reads open signals from the durable sink and restores
// those still within TTL to the in-memory table; those past TTL are
// archived as expired, per spec.md §4.6's startup-recovery operation.
func (t *Tracker) RecoverOnStartup() error {
	rows, err := t.sink.ListOpen()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		r := row
		if r.Expired(now) {
			t.closeLocked(&r, model.OutcomeExpired, r.EntryPrice)
			continue
		}
		t.open[r.Symbol] = &r
		slog.Info("tracker: recovered open signal", "symbol", r.Symbol, "direction", r.Direction)
	}
	return nil
}
