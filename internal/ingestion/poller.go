package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const interSymbolPause = 50 * time.Millisecond

// PollerConfig configures the open-interest and funding-rate pull loops.
type PollerConfig struct {
	BaseRESTURL         string
	Symbols             []string
	FundingPollInterval time.Duration
	OIHistoryCap        int
	OIHistoryTTL        int64
	FundingHistoryCap   int
	FundingHistoryTTL   int64
	HTTPClient          *http.Client
}

// Poller runs the two periodic pull loops of spec.md §4.2: open interest
// and funding rate, one cooperative task each, iterating the symbol list
// with a small per-request pause and sleeping FundingPollInterval between
// sweeps. Per-symbol request failures are logged and counted but never
// terminate the loop.
type Poller struct {
	cfg      PollerConfig
	handlers *Handlers
	client   *http.Client

	OnRequestError func(endpoint string)
}

// NewPoller builds a Poller.
func NewPoller(cfg PollerConfig, h *Handlers) *Poller {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.FundingPollInterval <= 0 {
		cfg.FundingPollInterval = 60 * time.Second
	}
	return &Poller{cfg: cfg, handlers: h, client: cfg.HTTPClient}
}

// RunOpenInterest sweeps the symbol universe forever until ctx is done.
func (p *Poller) RunOpenInterest(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, sym := range p.cfg.Symbols {
			select {
			case <-ctx.Done():
				return
			default:
			}
			p.pollOneOI(ctx, sym)
			time.Sleep(interSymbolPause)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.FundingPollInterval):
		}
	}
}

// RunFunding sweeps the symbol universe forever until ctx is done.
func (p *Poller) RunFunding(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, sym := range p.cfg.Symbols {
			select {
			case <-ctx.Done():
				return
			default:
			}
			p.pollOneFunding(ctx, sym)
			time.Sleep(interSymbolPause)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.FundingPollInterval):
		}
	}
}

type openInterestResp struct {
	OpenInterest string `json:"openInterest"`
}

type premiumIndexResp struct {
	MarkPrice            string `json:"markPrice"`
	IndexPrice           string `json:"indexPrice"`
	LastFundingRate      string `json:"lastFundingRate"`
	NextFundingTime      int64  `json:"nextFundingTime"`
}

func (p *Poller) pollOneOI(ctx context.Context, symbol string) {
	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", p.cfg.BaseRESTURL, symbol)
	body, err := p.get(ctx, url)
	if err != nil {
		p.requestFailed("openInterest", err)
		return
	}
	var resp openInterestResp
	if err := json.Unmarshal(body, &resp); err != nil {
		p.requestFailed("openInterest", err)
		return
	}
	p.handlers.HandleOpenInterest(ctx, symbol, resp.OpenInterest, p.cfg.OIHistoryCap, p.cfg.OIHistoryTTL)
}

func (p *Poller) pollOneFunding(ctx context.Context, symbol string) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", p.cfg.BaseRESTURL, symbol)
	body, err := p.get(ctx, url)
	if err != nil {
		p.requestFailed("premiumIndex", err)
		return
	}
	var resp premiumIndexResp
	if err := json.Unmarshal(body, &resp); err != nil {
		p.requestFailed("premiumIndex", err)
		return
	}
	p.handlers.HandleFunding(ctx, symbol, resp.LastFundingRate, resp.MarkPrice, resp.IndexPrice,
		p.cfg.FundingHistoryCap, p.cfg.FundingHistoryTTL)
}

func (p *Poller) get(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *Poller) requestFailed(endpoint string, err error) {
	slog.Warn("ingestion: poll request failed", "endpoint", endpoint, "err", err)
	if p.OnRequestError != nil {
		p.OnRequestError(endpoint)
	}
}
