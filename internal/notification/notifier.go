// Package notification delivers armed signals and operational alerts to
// external channels (Telegram, generic webhooks, or just the log).
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"signalengine/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert formats an armed signal into the Alert shape every backend
// delivers, so Telegram/webhook/log notifiers never need to know about
// model.Signal directly.
func SignalAlert(sig model.Signal) Alert {
	title := fmt.Sprintf("%s %s signal", sig.Symbol, sig.Direction)
	msg := fmt.Sprintf("score=%.2f mtf=%.2f entry=%.4f tp=%.4f sl=%.4f triggers=%v",
		sig.Score, sig.MTFScore, sig.EntryPrice, sig.TPPrice, sig.SLPrice, sig.TriggerEvents)
	return Alert{Level: AlertInfo, Title: title, Message: msg}
}

// LogNotifier is a simple notifier that logs alerts (useful for development
// and as the zero-config default).
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("notify", "level", alert.Level, "title", alert.Title, "message", alert.Message)
	return nil
}

// postJSON marshals payload and POSTs it to url, shared by the Telegram and
// webhook backends so each only has to build its own payload shape.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

const defaultQueueCapacity = 1000

// Dispatcher is the bounded-queue collaborator the Signal Engine hands
// armed signals to (it implements signal.Notifier's Enqueue). A single
// goroutine drains the queue and fans each signal out to every configured
// backend; a full queue drops the signal and counts it rather than
// blocking the engine, per SPEC_FULL.md §3's backpressure note.
type Dispatcher struct {
	backends []Notifier
	ch       chan model.Signal
	dropped  int64

	Dropped func(count int64)
}

// NewDispatcher wires the channel and backend list. Call Run to start
// draining it under a context.
func NewDispatcher(backends ...Notifier) *Dispatcher {
	return &Dispatcher{
		backends: backends,
		ch:       make(chan model.Signal, defaultQueueCapacity),
	}
}

// Enqueue is non-blocking: on a full queue it increments the drop counter
// and returns immediately.
func (d *Dispatcher) Enqueue(sig model.Signal) {
	select {
	case d.ch <- sig:
	default:
		d.dropped++
		slog.Warn("notification: queue full, dropping signal", "symbol", sig.Symbol, "dropped_total", d.dropped)
		if d.Dropped != nil {
			d.Dropped(d.dropped)
		}
	}
}

// Run drains the queue until ctx is cancelled, sending each signal to every
// backend and logging (not propagating) individual backend failures.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-d.ch:
			if !ok {
				return
			}
			alert := SignalAlert(sig)
			for _, b := range d.backends {
				sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := b.Send(sendCtx, alert); err != nil {
					slog.Error("notification: send failed", "symbol", sig.Symbol, "err", err)
				}
				cancel()
			}
		}
	}
}
