package model

// Kline is one OHLCV candle for a symbol/timeframe pair.
type Kline struct {
	Symbol    string  `json:"symbol"`
	TF        int     `json:"tf"`
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	BaseVol   float64 `json:"base_vol"`
	QuoteVol  float64 `json:"quote_vol"`
	Closed    bool    `json:"closed"`
}

// DepthLevel is a single (price, size) order book entry.
type DepthLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Depth is a top-of-book snapshot for a symbol.
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
	TS     int64        `json:"ts"`
}

// MarkPrice is the exchange-computed fair price plus funding terms.
type MarkPrice struct {
	Symbol          string  `json:"symbol"`
	Mark            float64 `json:"mark"`
	Index           float64 `json:"index"`
	FundingRate     float64 `json:"funding_rate"`
	NextFundingTime int64   `json:"next_funding_time"`
	TS              int64   `json:"ts"`
}

// LiquidationSide mirrors the exchange's forceOrder side: SELL means a long
// position was force-closed, BUY means a short was.
type LiquidationSide string

const (
	LiquidationSell LiquidationSide = "SELL"
	LiquidationBuy  LiquidationSide = "BUY"
)

// Liquidation is one forced order-close event.
type Liquidation struct {
	Symbol    string          `json:"symbol"`
	Side      LiquidationSide `json:"side"`
	Price     float64         `json:"price"`
	Qty       float64         `json:"qty"`
	TradeTime int64           `json:"trade_time"`
}

// OIPoint is one open-interest sample.
type OIPoint struct {
	OI float64 `json:"oi"`
	TS int64   `json:"ts"`
}

// FundingPoint is one funding-rate poll sample.
type FundingPoint struct {
	FundingRate     float64 `json:"funding_rate"`
	Mark            float64 `json:"mark"`
	Index           float64 `json:"index"`
	NextFundingTime int64   `json:"next_funding_time"`
	TS              int64   `json:"ts"`
}
