package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalengine/internal/model"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Alert
	sendErr error
}

func (r *recordingNotifier) Send(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, alert)
	return r.sendErr
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestSignalAlertFormatsDirectionAndPrices(t *testing.T) {
	sig := model.Signal{
		Symbol: "BTCUSDT", Direction: model.Long, Score: 0.8, MTFScore: 0.9,
		EntryPrice: 100, TPPrice: 104, SLPrice: 98,
	}
	alert := SignalAlert(sig)
	assert.Equal(t, AlertInfo, alert.Level)
	assert.Contains(t, alert.Title, "BTCUSDT")
	assert.Contains(t, alert.Title, "long")
	assert.Contains(t, alert.Message, "tp=104")
}

func TestDispatcherFansOutToAllBackends(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	d := NewDispatcher(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(model.Signal{Symbol: "ETHUSDT", Direction: model.Short})

	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherDropsOnFullQueue(t *testing.T) {
	d := NewDispatcher()
	d.ch = make(chan model.Signal) // unbuffered, never drained in this test

	var dropped int64
	d.Dropped = func(count int64) { dropped = count }

	d.Enqueue(model.Signal{Symbol: "SOLUSDT"})

	assert.Equal(t, int64(1), dropped)
}
