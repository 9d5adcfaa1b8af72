package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signalengine/internal/ai"
	"signalengine/internal/event"
	"signalengine/internal/model"
	"signalengine/internal/rawstore"
	"signalengine/internal/tracker"
)

const bufferStaleAge = 30 * time.Second

// Config carries the gate thresholds of spec.md §4.5.
type Config struct {
	Symbols               []string
	Timeframes            []int
	PrimaryTimeframe      int
	SignalCooldown        time.Duration
	MTFAlignmentRequired  bool
	MTFMinAligned         int
	SignalScoreThreshold  float64
	AIEnabled             bool
	AIConfidenceThreshold float64
}

// Notifier is the bounded enqueue collaborator of SPEC_FULL.md §3: armed
// signals are handed off without blocking the engine.
type Notifier interface {
	Enqueue(model.Signal)
}

// Engine is the single consumer of spec.md §4.5: it pops events off the
// Event Queue, buffers them per symbol, evaluates immediately, and
// periodically ages out stale buffers.
type Engine struct {
	cfg      Config
	store    *rawstore.Store
	queue    *event.Queue
	tr       *tracker.Tracker
	sink     model.Sink
	notifier Notifier
	predictor model.Predictor

	mu       sync.Mutex
	buffers  map[string][]model.Event
	cooldown map[string]time.Time
}

// New builds a signal Engine.
func New(cfg Config, store *rawstore.Store, queue *event.Queue, tr *tracker.Tracker, sink model.Sink, notifier Notifier, predictor model.Predictor) *Engine {
	if cfg.SignalCooldown <= 0 {
		cfg.SignalCooldown = 300 * time.Second
	}
	if predictor == nil {
		predictor = ai.AlwaysAbstain{}
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		queue:    queue,
		tr:       tr,
		sink:     sink,
		notifier: notifier,
		predictor: predictor,
		buffers:  make(map[string][]model.Event),
		cooldown: make(map[string]time.Time),
	}
}

// Run consumes the event queue until ctx is cancelled, buffering and
// evaluating on every event and flushing stale buffers once a second.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.queue.C():
			if !ok {
				return
			}
			if ev.Symbol == "" {
				continue
			}
			e.bufferEvent(ev)
			e.evaluateSafe(ev.Symbol)
		case <-ticker.C:
			e.flushStale()
		}
	}
}

func (e *Engine) bufferEvent(ev model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers[ev.Symbol] = append(e.buffers[ev.Symbol], ev)
}

func (e *Engine) flushStale() {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, evs := range e.buffers {
		if len(evs) == 0 {
			continue
		}
		last := time.Unix(evs[len(evs)-1].TS, 0)
		if now.Sub(last) > bufferStaleAge {
			delete(e.buffers, sym)
		}
	}
}

func (e *Engine) evaluateSafe(symbol string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("signal: evaluate panic", "symbol", symbol, "recovered", r)
		}
	}()
	e.evaluate(symbol)
}

// EvaluateNow is the on-demand rescoring path of SPEC_FULL.md §3: it
// reuses the same gate chain as the event-driven path outside of the
// periodic flow, e.g. for an external "/check SYMBOL" collaborator.
func (e *Engine) EvaluateNow(symbol string) (*model.Signal, bool) {
	return e.evaluate(symbol)
}

func (e *Engine) evaluate(symbol string) (*model.Signal, bool) {
	// Gate A — openness
	if e.tr.HasOpenSignal(symbol) {
		return nil, false
	}
	e.mu.Lock()
	last, onCooldown := e.cooldown[symbol]
	e.mu.Unlock()
	if onCooldown && time.Since(last) < e.cfg.SignalCooldown {
		return nil, false
	}

	// Gate B — features available
	v, ok := e.store.GetScalar(rawstore.FeaturesDefaultKey(symbol))
	if !ok {
		return nil, false
	}
	features, ok := v.(model.Features)
	if !ok {
		return nil, false
	}

	var alignment Alignment
	if e.cfg.MTFAlignmentRequired {
		alignment = e.mtfAlignment(symbol)
		if !alignment.Aligned {
			slog.Debug("signal: mtf not aligned", "symbol", symbol)
			return nil, false
		}
	} else {
		alignment = Alignment{Aligned: true, MTFScore: 1.0}
	}

	e.mu.Lock()
	events := append([]model.Event(nil), e.buffers[symbol]...)
	e.mu.Unlock()

	result := Score(features, events)
	if result.Score < e.cfg.SignalScoreThreshold {
		return nil, false
	}

	triggerTypes := uniqueEventTypes(events)
	sig := model.Signal{
		Symbol:           symbol,
		Direction:        result.Direction,
		Score:            result.Score,
		MTFScore:         alignment.MTFScore,
		MTFAligned:       alignment.Aligned,
		TriggerEvents:    triggerTypes,
		FeaturesSnapshot: features,
		Timestamp:        time.Now().Unix(),
	}

	if e.cfg.AIEnabled {
		aiResult := e.predictor.Predict(features)
		if aiResult.Confidence < e.cfg.AIConfidenceThreshold {
			slog.Info("signal: AI filtered", "symbol", symbol, "confidence", aiResult.Confidence)
			return nil, false
		}
		sig.AIResult = &aiResult
	}

	e.arm(&sig, features)

	e.sink.AppendSignal(sig)
	if e.notifier != nil {
		e.notifier.Enqueue(sig)
	}

	e.mu.Lock()
	delete(e.buffers, symbol)
	e.mu.Unlock()

	slog.Info("signal: emitted", "symbol", symbol, "direction", sig.Direction,
		"score", sig.Score, "mtf_score", sig.MTFScore, "triggers", triggerTypes)

	return &sig, true
}

func (e *Engine) arm(sig *model.Signal, features model.Features) {
	entry := e.entryPrice(sig.Symbol)
	atr := features.ATR

	if entry > 0 && atr > 0 {
		tracked := e.tr.RegisterSignal(sig.Symbol, sig.Direction, sig.Score, entry, atr, sig.TriggerEvents)
		sig.EntryPrice = tracked.EntryPrice
		sig.TPPrice = tracked.TPPrice
		sig.SLPrice = tracked.SLPrice
		sig.ATR = tracked.ATRAtEntry
		return
	}

	e.mu.Lock()
	e.cooldown[sig.Symbol] = time.Now()
	e.mu.Unlock()
}

func (e *Engine) entryPrice(symbol string) float64 {
	if v, ok := e.store.GetScalar(rawstore.MarkPriceKey(symbol)); ok {
		if mp, ok := v.(model.MarkPrice); ok && mp.Mark > 0 {
			return mp.Mark
		}
	}
	if v, ok := e.store.GetScalar(rawstore.KlineKey(symbol, e.cfg.PrimaryTimeframe)); ok {
		if k, ok := v.(model.Kline); ok {
			return k.Close
		}
	}
	return 0
}

func (e *Engine) mtfAlignment(symbol string) Alignment {
	perTF := make(map[int]model.Features, len(e.cfg.Timeframes))
	for _, tf := range e.cfg.Timeframes {
		v, ok := e.store.GetScalar(rawstore.FeaturesKey(symbol, tf))
		if !ok {
			continue
		}
		if f, ok := v.(model.Features); ok {
			perTF[tf] = f
		}
	}
	return CheckAlignment(perTF, e.cfg.MTFMinAligned)
}

func uniqueEventTypes(events []model.Event) []model.EventType {
	seen := make(map[model.EventType]struct{})
	var out []model.EventType
	for _, ev := range events {
		if _, ok := seen[ev.Type]; !ok {
			seen[ev.Type] = struct{}{}
			out = append(out, ev.Type)
		}
	}
	return out
}
