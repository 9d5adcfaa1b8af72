package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// maxFrameBytes is the 4 MiB frame cap named in spec.md §6.1.
const maxFrameBytes = 4 << 20

// CollectorConfig configures one chunked streaming connection.
type CollectorConfig struct {
	BaseWSURL         string // e.g. "wss://fstream.example.com"
	Streams           []string
	PingInterval      time.Duration
	ReconnectDelay    time.Duration // starting backoff
	MaxReconnectDelay time.Duration // capped at 30s per spec.md §4.2
}

// Collector owns one long-lived multiplexed connection over a chunk of
// streams. Reconnects with exponential backoff (x1.5 per attempt, capped at
// MaxReconnectDelay); the backoff is not reset after a successful connect.
// Respects a heartbeat ping/pong per spec.md §4.2.
type Collector struct {
	cfg      CollectorConfig
	handlers *Handlers

	// OnReconnect is called after every reconnect attempt (success or not),
	// for metrics.
	OnReconnect func()
}

// NewCollector builds a Collector for one chunk of streams.
func NewCollector(cfg CollectorConfig, h *Handlers) *Collector {
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Collector{cfg: cfg, handlers: h}
}

func (c *Collector) url() string {
	return fmt.Sprintf("%s/stream?streams=%s", c.cfg.BaseWSURL, strings.Join(c.cfg.Streams, "/"))
}

// Run connects and reconnects until ctx is cancelled. Each frame is
// deserialized, routed by the stream-name suffix, and handed to Handlers;
// a per-frame panic or handler error is isolated so the connection is
// retained (spec.md §7's "Programming error" class).
func (c *Collector) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.runOnce(ctx)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("ingestion: connection dropped, backing off", "err", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = minDuration(backoff*3/2, c.cfg.MaxReconnectDelay)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (c *Collector) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(dialCtx, c.url(), http.Header{})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + 10*time.Second))
	})
	conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + 10*time.Second))

	done := make(chan struct{})
	go c.heartbeat(ctx, conn, done)
	defer close(done)

	// The read loop ends with nil on cancellation and with the read error
	// otherwise.
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(ctx, data)
	}
}

func (c *Collector) heartbeat(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *Collector) dispatch(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingestion: handler panic", "recovered", r)
		}
	}()

	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.handlers.dropInvalid("frame", err)
		return
	}

	switch {
	case strings.Contains(frame.Stream, "@kline_"):
		tf := parseTFSuffix(frame.Stream)
		c.handlers.HandleKline(ctx, tf, frame.Data, defaultKlinesCap(tf))
	case strings.Contains(frame.Stream, "@depth"):
		c.handlers.HandleDepth(ctx, frame.Stream, frame.Data)
	case strings.Contains(frame.Stream, "@markPrice"):
		c.handlers.HandleMarkPrice(ctx, frame.Data)
	case strings.Contains(frame.Stream, "forceOrder"):
		c.handlers.HandleForceOrder(ctx, frame.Data)
	default:
		slog.Debug("ingestion: unrecognized stream", "stream", frame.Stream)
	}
}

// parseTFSuffix extracts the timeframe token from "<symbol>@kline_<tf>",
// e.g. "1m" -> 60. A suffix of plain or "s"-suffixed seconds (e.g. "30s")
// returns that number; any other suffix defaults to the 1m bucket.
func parseTFSuffix(stream string) int {
	idx := strings.Index(stream, "@kline_")
	if idx < 0 {
		return 60
	}
	suffix := stream[idx+len("@kline_"):]
	switch suffix {
	case "1m":
		return 60
	case "5m":
		return 300
	case "15m":
		return 900
	case "1h":
		return 3600
	default:
		if n, err := strconv.Atoi(strings.TrimSuffix(suffix, "s")); err == nil {
			return n
		}
		return 60
	}
}

func defaultKlinesCap(tf int) int {
	// generous fixed cap; the feature engine only ever reads a bounded
	// prefix via rawstore.Range
	return 300
}

// ChunkStreams partitions streams into groups of at most size, matching
// spec.md §4.2's "chunks of size ws_max_streams_per_conn".
func ChunkStreams(streams []string, size int) [][]string {
	if size <= 0 {
		size = 200
	}
	var chunks [][]string
	for size < len(streams) {
		streams, chunks = streams[size:], append(chunks, streams[:size:size])
	}
	return append(chunks, streams)
}
