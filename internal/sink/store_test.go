package sink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalengine/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sink.db")
	s, err := New(Config{DBPath: path, BatchSize: 2, FlushDelay: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendSignalFlushesOnBatchSize(t *testing.T) {
	s := newTestStore(t)

	s.AppendSignal(model.Signal{Symbol: "BTCUSDT", Direction: model.Long, Timestamp: 1})
	s.AppendSignal(model.Signal{Symbol: "ETHUSDT", Direction: model.Short, Timestamp: 2})

	require.Eventually(t, func() bool {
		var n int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM signals`)
		row.Scan(&n)
		return n == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAppendEventFlushesOnTimer(t *testing.T) {
	s := newTestStore(t)

	s.AppendEvent(model.Event{Symbol: "BTCUSDT", Type: model.EventATRExpansion, TS: 1})

	require.Eventually(t, func() bool {
		var n int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM events`)
		row.Scan(&n)
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecordPerformanceThenListOpen(t *testing.T) {
	s := newTestStore(t)

	opened := model.TrackedSignal{
		Symbol:     "SOLUSDT",
		Direction:  model.Long,
		EntryPrice: 100,
		TPPrice:    110,
		SLPrice:    95,
		OpenedAt:   1000,
		TTLSeconds: 3600,
		Outcome:    model.OutcomeOpen,
	}
	s.RecordPerformance(opened)

	open, err := s.ListOpen()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "SOLUSDT", open[0].Symbol)
	assert.Equal(t, model.OutcomeOpen, open[0].Outcome)

	closed := opened
	closed.Outcome = model.OutcomeTPHit
	closed.ClosePrice = 110
	closed.ClosedAt = 2000
	closed.PnLPct = 10
	s.RecordPerformance(closed)

	open, err = s.ListOpen()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAppendSnapshotFlushesOnTimer(t *testing.T) {
	s := newTestStore(t)

	s.AppendSnapshot("BTCUSDT", 60, model.Features{Symbol: "BTCUSDT", TF: 60, TS: 5})

	require.Eventually(t, func() bool {
		var n int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM feature_snapshots`)
		row.Scan(&n)
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCloseFlushesPendingBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.db")
	s, err := New(Config{DBPath: path, BatchSize: 100, FlushDelay: time.Hour})
	require.NoError(t, err)

	s.AppendSignal(model.Signal{Symbol: "BTCUSDT", Direction: model.Long, Timestamp: 1})
	require.NoError(t, s.Close())

	s2, err := New(Config{DBPath: path})
	require.NoError(t, err)
	defer s2.Close()
	var n int
	row := s2.db.QueryRow(`SELECT COUNT(*) FROM signals`)
	require.NoError(t, row.Scan(&n))
	assert.Equal(t, 1, n)
}
