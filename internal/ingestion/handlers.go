package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"signalengine/internal/model"
	"signalengine/internal/rawstore"
)

const (
	liquidationsCap = 200
	liqTTLSeconds   = 600
	depthTTLSeconds = 30
	markTTLSeconds  = 60
)

// Handlers writes validated payloads into the Raw Store and publishes
// (symbol, data_kind) notifications to the Update Bus. Validation failures
// and publish failures are both non-fatal per spec.md §7: logged, counted,
// never propagated.
type Handlers struct {
	Store  *rawstore.Store
	Bus    model.UpdateBus
	Metric *Metrics
}

// Metrics are the counters the error taxonomy in spec.md §7 calls for.
// Implementations are optional (nil-safe) so tests can omit them.
type Metrics struct {
	ValidationDropped func(kind string)
	BusPublishDropped func()
}

func (h *Handlers) dropInvalid(kind string, err error) {
	slog.Debug("ingestion: dropping invalid payload", "kind", kind, "err", err)
	if h.Metric != nil && h.Metric.ValidationDropped != nil {
		h.Metric.ValidationDropped(kind)
	}
}

func (h *Handlers) publish(ctx context.Context, symbol, kind string) {
	if h.Bus == nil {
		return
	}
	if err := h.Bus.Publish(ctx, symbol, kind); err != nil && h.Metric != nil && h.Metric.BusPublishDropped != nil {
		h.Metric.BusPublishDropped()
	}
}

// HandleKline validates and stores one kline frame for timeframe tf.
func (h *Handlers) HandleKline(ctx context.Context, tf int, raw json.RawMessage, klinesCap int) {
	k, err := ValidateKline(tf, raw)
	if err != nil {
		h.dropInvalid("kline", err)
		return
	}
	ttl := int64(tf * 10)
	h.Store.SetScalar(rawstore.KlineKey(k.Symbol, tf), k, ttl)
	if k.Closed {
		h.Store.PushFrontTrim(rawstore.KlinesKey(k.Symbol, tf), k, klinesCap, ttl)
	}
	h.publish(ctx, k.Symbol, "kline")
}

// HandleDepth validates and stores a depth snapshot. symbol comes from the
// stream name (e.g. "btcusdt@depth10@100ms"), not the payload body.
func (h *Handlers) HandleDepth(ctx context.Context, streamSymbol string, raw json.RawMessage) {
	symbol := model.CanonicalSymbol(strings.SplitN(streamSymbol, "@", 2)[0])
	d, err := ValidateDepth(symbol, raw)
	if err != nil {
		h.dropInvalid("depth", err)
		return
	}
	h.Store.SetScalar(rawstore.DepthKey(d.Symbol), d, depthTTLSeconds)
	h.publish(ctx, d.Symbol, "depth")
}

// HandleMarkPrice validates and stores a mark-price tick.
func (h *Handlers) HandleMarkPrice(ctx context.Context, raw json.RawMessage) {
	mp, err := ValidateMarkPrice(raw)
	if err != nil {
		h.dropInvalid("mark_price", err)
		return
	}
	h.Store.SetScalar(rawstore.MarkPriceKey(mp.Symbol), mp, markTTLSeconds)
	h.publish(ctx, mp.Symbol, "mark_price")
}

// HandleForceOrder validates and appends a liquidation event.
func (h *Handlers) HandleForceOrder(ctx context.Context, raw json.RawMessage) {
	liq, err := ValidateForceOrder(raw)
	if err != nil {
		h.dropInvalid("force_order", err)
		return
	}
	h.Store.PushFrontTrim(rawstore.LiquidationsKey(liq.Symbol), liq, liquidationsCap, liqTTLSeconds)
	h.publish(ctx, liq.Symbol, "liquidation")
}

// HandleOpenInterest stores a polled open-interest sample.
func (h *Handlers) HandleOpenInterest(ctx context.Context, symbol string, raw string, histCap int, ttlSeconds int64) {
	oi, err := ValidateOpenInterest(raw)
	if err != nil {
		h.dropInvalid("open_interest", err)
		return
	}
	sym := model.CanonicalSymbol(symbol)
	h.Store.PushFrontTrim(rawstore.OIHistoryKey(sym), model.OIPoint{OI: oi, TS: time.Now().Unix()}, histCap, ttlSeconds)
	h.publish(ctx, sym, "open_interest")
}

// HandleFunding stores a polled funding-rate sample.
func (h *Handlers) HandleFunding(ctx context.Context, symbol, rateStr, markStr, indexStr string, histCap int, ttlSeconds int64) {
	fp, err := ValidateFunding(rateStr, markStr, indexStr)
	if err != nil {
		h.dropInvalid("funding", err)
		return
	}
	sym := model.CanonicalSymbol(symbol)
	fp.TS = time.Now().Unix()
	h.Store.PushFrontTrim(rawstore.FundingHistoryKey(sym), fp, histCap, ttlSeconds)
	h.publish(ctx, sym, "funding")
}
