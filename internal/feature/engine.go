package feature

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signalengine/internal/model"
	"signalengine/internal/rawstore"
)

// Config carries the window/threshold parameters of spec.md §4.3 that
// computations.go needs but cannot know on its own.
type Config struct {
	Symbols             []string
	Timeframes          []int
	PrimaryTimeframe    int
	StructureLookback   int
	ATRPeriod           int
	EMAFast             int
	EMASlopeLookback    int
	VWAPPeriod          int
	OIDeltaWindow       int
	FundingZWindow      int
	LiqRatioWindow      int
	WallPressureThresh  float64
	FallbackInterval    time.Duration
	StreamMaxWaitMillis int64
}

// Engine is the hybrid feature computation loop of spec.md §4.3: a
// reactive consumer recomputes on Update Bus notifications, and a timer
// sweep recomputes any symbol that hasn't been refreshed within
// FallbackInterval, per original_source/app/features/engine.py.
type Engine struct {
	cfg   Config
	store *rawstore.Store
	bus   model.UpdateBus

	OnComputed func(symbol string, tf int)

	mu            sync.Mutex
	lastComputed  map[string]time.Time
	symbolAllowed map[string]bool
}

// New builds a feature Engine.
func New(cfg Config, store *rawstore.Store, bus model.UpdateBus) *Engine {
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = 10 * time.Second
	}
	if cfg.StreamMaxWaitMillis <= 0 {
		cfg.StreamMaxWaitMillis = 1000
	}
	if cfg.EMASlopeLookback <= 0 {
		cfg.EMASlopeLookback = 3
	}
	allowed := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		allowed[model.CanonicalSymbol(s)] = true
	}
	return &Engine{
		cfg:           cfg,
		store:         store,
		bus:           bus,
		lastComputed:  make(map[string]time.Time),
		symbolAllowed: allowed,
	}
}

// RunStreamConsumer reads the Update Bus and recomputes features for every
// distinct symbol touched by a batch of notifications. It is the primary,
// low-latency path.
func (e *Engine) RunStreamConsumer(ctx context.Context) {
	lastID := ""
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, nextID, err := e.bus.Read(ctx, lastID, e.cfg.StreamMaxWaitMillis)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("feature: stream read error", "err", err)
			time.Sleep(time.Second)
			continue
		}
		lastID = nextID
		if len(entries) == 0 {
			continue
		}

		dirty := make(map[string]struct{})
		for _, ent := range entries {
			sym := model.CanonicalSymbol(ent.Symbol)
			if e.symbolAllowed[sym] {
				dirty[sym] = struct{}{}
			}
		}
		for sym := range dirty {
			e.computeSymbolSafe(sym)
		}
	}
}

// RunFallback sweeps every configured symbol and recomputes any whose
// features haven't been refreshed within FallbackInterval, the safety net
// for a dropped or missed stream notification.
func (e *Engine) RunFallback(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FallbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			e.mu.Lock()
			var stale []string
			for _, sym := range e.cfg.Symbols {
				sym = model.CanonicalSymbol(sym)
				if now.Sub(e.lastComputed[sym]) > e.cfg.FallbackInterval {
					stale = append(stale, sym)
				}
			}
			e.mu.Unlock()
			for _, sym := range stale {
				e.computeSymbolSafe(sym)
			}
		}
	}
}

func (e *Engine) computeSymbolSafe(symbol string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feature: compute panic", "symbol", symbol, "recovered", r)
		}
	}()
	e.computeSymbol(symbol)
}

func (e *Engine) computeSymbol(symbol string) {
	for _, tf := range e.cfg.Timeframes {
		e.computeTimeframe(symbol, tf)
	}
	e.mu.Lock()
	e.lastComputed[symbol] = time.Now()
	e.mu.Unlock()
}

func (e *Engine) computeTimeframe(symbol string, tf int) {
	klinesRaw := e.store.Range(rawstore.KlinesKey(symbol, tf), e.cfg.ATRPeriod+e.cfg.StructureLookback+5)
	if len(klinesRaw) == 0 {
		return // no data yet for this symbol/timeframe
	}
	candles := make([]model.Kline, 0, len(klinesRaw))
	for _, v := range klinesRaw {
		if k, ok := v.(model.Kline); ok {
			candles = append(candles, k)
		}
	}
	if len(candles) == 0 {
		return
	}

	oiRaw := e.store.Range(rawstore.OIHistoryKey(symbol), e.cfg.OIDeltaWindow+5)
	oiHistory := make([]model.OIPoint, 0, len(oiRaw))
	for _, v := range oiRaw {
		if p, ok := v.(model.OIPoint); ok {
			oiHistory = append(oiHistory, p)
		}
	}

	fundingRaw := e.store.Range(rawstore.FundingHistoryKey(symbol), e.cfg.FundingZWindow+5)
	fundingHistory := make([]model.FundingPoint, 0, len(fundingRaw))
	for _, v := range fundingRaw {
		if p, ok := v.(model.FundingPoint); ok {
			fundingHistory = append(fundingHistory, p)
		}
	}

	liqRaw := e.store.Range(rawstore.LiquidationsKey(symbol), e.cfg.LiqRatioWindow+5)
	liqs := make([]model.Liquidation, 0, len(liqRaw))
	for _, v := range liqRaw {
		if l, ok := v.(model.Liquidation); ok {
			liqs = append(liqs, l)
		}
	}

	var depth model.Depth
	if v, ok := e.store.GetScalar(rawstore.DepthKey(symbol)); ok {
		if d, ok := v.(model.Depth); ok {
			depth = d
		}
	}

	structureState := StructureState(candles)
	breakout, breakoutLevel := Breakout(candles, e.cfg.StructureLookback)
	atr := ATR(candles, e.cfg.ATRPeriod)
	rangeExp := RangeExpansion(candles, e.cfg.ATRPeriod)
	emaSlope := EMASlope(candles, e.cfg.EMAFast, e.cfg.EMASlopeLookback)
	vwapDist := VWAPDistance(candles, e.cfg.VWAPPeriod)
	oiDelta := OIDelta(oiHistory, e.cfg.OIDeltaWindow)
	fundingZ := FundingZScore(fundingHistory, e.cfg.FundingZWindow)
	longLiqs, shortLiqs, liqRatio, liqUSD := LiquidationStats(liqs, e.cfg.LiqRatioWindow)
	obImbalance := OrderbookImbalance(depth)
	bidWall, askWall := WallPressure(depth, e.cfg.WallPressureThresh)

	f := model.Features{
		Symbol:          symbol,
		TF:              tf,
		TS:              time.Now().Unix(),
		StructureState:  structureState,
		Breakout:        breakout,
		BreakoutLevel:   breakoutLevel,
		ATR:             atr,
		RangeExpansion:  rangeExp,
		EMASlope:        emaSlope,
		VWAPDistance:    vwapDist,
		OIDelta:         oiDelta,
		FundingZScore:   fundingZ,
		LiqLong:         longLiqs,
		LiqShort:        shortLiqs,
		LiqRatio:        liqRatio,
		LiqTotalUSD:     liqUSD,
		OBImbalance:     obImbalance,
		BidWall:         bidWall,
		AskWall:         askWall,
	}

	e.store.SetScalar(rawstore.FeaturesKey(symbol, tf), f, 0)
	if tf == e.cfg.PrimaryTimeframe {
		e.store.SetScalar(rawstore.FeaturesDefaultKey(symbol), f, 0)
	}
	if e.OnComputed != nil {
		e.OnComputed(symbol, tf)
	}
}
