// Package ingestion implements the streaming and pull-poll producers of
// spec.md §4.2: N long-lived multiplexed WebSocket connections chunked by
// ws_max_streams_per_conn, plus periodic open-interest and funding-rate
// pull loops. Every inbound payload passes through validation (§4.2.1)
// before touching the Raw Store.
package ingestion

import (
	"encoding/json"
	"fmt"
	"math"

	"signalengine/internal/model"
)

// wireFrame mirrors the combined-stream envelope named in spec.md §6.1:
// {"stream": "<name>", "data": {...}}.
type wireFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineWire struct {
	Symbol   string `json:"symbol"`
	OpenTime int64  `json:"open_time"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	BaseVol  string `json:"base_vol"`
	QuoteVol string `json:"quote_vol"`
	Closed   bool   `json:"closed"`
}

type depthLevelWire [2]string // [price, size]

type depthWire struct {
	Bids []depthLevelWire `json:"bids"`
	Asks []depthLevelWire `json:"asks"`
}

type markPriceWire struct {
	Symbol          string `json:"symbol"`
	Mark            string `json:"mark"`
	Index           string `json:"index"`
	FundingRate     string `json:"funding_rate"`
	NextFundingTime int64  `json:"next_funding_time"`
}

type forceOrderWire struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Price  string `json:"price"`
	Qty    string `json:"qty"`
	TradeTime int64 `json:"trade_time"`
}

// ValidationError marks a payload as malformed: strict on shape, lenient
// on unknown fields, per spec.md §4.2.1. Callers drop the frame silently
// and count it; they must never retry or crash the handler.
type ValidationError struct{ reason string }

func (e *ValidationError) Error() string { return e.reason }

func invalid(format string, args ...any) error {
	return &ValidationError{reason: fmt.Sprintf(format, args...)}
}

func parseNumeric(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0, invalid("non-numeric field %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid("non-finite field %q", s)
	}
	return f, nil
}

// ValidateKline enforces: symbol; O,H,L,C, base_vol and quote_vol numeric.
// open_time and the closed flag are taken as decoded: when absent they are
// 0 and false, and their absence is not reported.
func ValidateKline(tf int, raw json.RawMessage) (model.Kline, error) {
	var w klineWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Kline{}, invalid("kline unmarshal: %v", err)
	}
	if w.Symbol == "" {
		return model.Kline{}, invalid("kline missing symbol")
	}
	open, err := parseNumeric(w.Open)
	if err != nil {
		return model.Kline{}, err
	}
	high, err := parseNumeric(w.High)
	if err != nil {
		return model.Kline{}, err
	}
	low, err := parseNumeric(w.Low)
	if err != nil {
		return model.Kline{}, err
	}
	close, err := parseNumeric(w.Close)
	if err != nil {
		return model.Kline{}, err
	}
	baseVol, err := parseNumeric(w.BaseVol)
	if err != nil {
		return model.Kline{}, err
	}
	quoteVol, err := parseNumeric(w.QuoteVol)
	if err != nil {
		return model.Kline{}, err
	}

	return model.Kline{
		Symbol:   model.CanonicalSymbol(w.Symbol),
		TF:       tf,
		OpenTime: w.OpenTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		BaseVol:  baseVol,
		QuoteVol: quoteVol,
		Closed:   w.Closed,
	}, nil
}

// ValidateDepth enforces: symbol from the stream name; two ordered
// sequences (bids, asks), each element (price, size).
func ValidateDepth(symbol string, raw json.RawMessage) (model.Depth, error) {
	var w depthWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Depth{}, invalid("depth unmarshal: %v", err)
	}
	bids, err := depthLevels(w.Bids)
	if err != nil {
		return model.Depth{}, err
	}
	asks, err := depthLevels(w.Asks)
	if err != nil {
		return model.Depth{}, err
	}
	return model.Depth{Symbol: model.CanonicalSymbol(symbol), Bids: bids, Asks: asks}, nil
}

func depthLevels(raw []depthLevelWire) ([]model.DepthLevel, error) {
	out := make([]model.DepthLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := parseNumeric(lvl[0])
		if err != nil {
			return nil, err
		}
		size, err := parseNumeric(lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, model.DepthLevel{Price: price, Size: size})
	}
	return out, nil
}

// ValidateMarkPrice enforces: symbol; mark, index, funding_rate numeric.
func ValidateMarkPrice(raw json.RawMessage) (model.MarkPrice, error) {
	var w markPriceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.MarkPrice{}, invalid("markprice unmarshal: %v", err)
	}
	if w.Symbol == "" {
		return model.MarkPrice{}, invalid("markprice missing symbol")
	}
	mark, err := parseNumeric(w.Mark)
	if err != nil {
		return model.MarkPrice{}, err
	}
	index, err := parseNumeric(w.Index)
	if err != nil {
		return model.MarkPrice{}, err
	}
	funding, err := parseNumeric(w.FundingRate)
	if err != nil {
		return model.MarkPrice{}, err
	}
	return model.MarkPrice{
		Symbol:          model.CanonicalSymbol(w.Symbol),
		Mark:            mark,
		Index:           index,
		FundingRate:     funding,
		NextFundingTime: w.NextFundingTime,
	}, nil
}

// ValidateForceOrder enforces: symbol; side in {SELL, BUY}; price, qty
// numeric.
func ValidateForceOrder(raw json.RawMessage) (model.Liquidation, error) {
	var w forceOrderWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Liquidation{}, invalid("forceorder unmarshal: %v", err)
	}
	if w.Symbol == "" {
		return model.Liquidation{}, invalid("forceorder missing symbol")
	}
	side := model.LiquidationSide(w.Side)
	if side != model.LiquidationSell && side != model.LiquidationBuy {
		return model.Liquidation{}, invalid("forceorder bad side %q", w.Side)
	}
	price, err := parseNumeric(w.Price)
	if err != nil {
		return model.Liquidation{}, err
	}
	qty, err := parseNumeric(w.Qty)
	if err != nil {
		return model.Liquidation{}, err
	}
	return model.Liquidation{
		Symbol:    model.CanonicalSymbol(w.Symbol),
		Side:      side,
		Price:     price,
		Qty:       qty,
		TradeTime: w.TradeTime,
	}, nil
}

// ValidateOpenInterest enforces: numeric OI.
func ValidateOpenInterest(raw string) (float64, error) {
	v, err := parseNumeric(raw)
	if err != nil {
		return 0, invalid("open interest: %v", err)
	}
	return v, nil
}

// ValidateFunding enforces: numeric last rate, mark, index.
func ValidateFunding(rateStr, markStr, indexStr string) (model.FundingPoint, error) {
	rate, err := parseNumeric(rateStr)
	if err != nil {
		return model.FundingPoint{}, err
	}
	mark, err := parseNumeric(markStr)
	if err != nil {
		return model.FundingPoint{}, err
	}
	index, err := parseNumeric(indexStr)
	if err != nil {
		return model.FundingPoint{}, err
	}
	return model.FundingPoint{FundingRate: rate, Mark: mark, Index: index}, nil
}
