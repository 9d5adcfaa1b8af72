// Package sink implements the Persistence Sink repository contract
// (model.Sink): a batched, best-effort write-behind into SQLite, circuit
// broken so a stalled database never blocks the engines that call it.
package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	_ "github.com/mattn/go-sqlite3"

	"signalengine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite-backed sink.
type Config struct {
	DBPath     string
	BatchSize  int
	FlushDelay time.Duration
}

// Store is a single-writer SQLite sink with transaction batching, mirroring
// the teacher's sqlite.Writer shape but fanning out over three batched
// append streams (signals, events, feature snapshots) instead of one candle
// channel; performance rows are upserted immediately by RecordPerformance.
type Store struct {
	db  *sql.DB
	cfg Config
	cb  *gobreaker.CircuitBreaker

	mu          sync.Mutex
	signalBatch []model.Signal
	eventBatch  []model.Event
	snapBatch   []snapshotRow
	perfBatch   []model.TrackedSignal

	flushSig chan struct{}
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

type snapshotRow struct {
	Symbol string
	TF     int
	F      model.Features
}

// New opens the database, applies the schema and starts the background
// flush loop.
func New(cfg Config) (*Store, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sink: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: schema: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "sink-sqlite",
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
	}

	s := &Store{
		db:       db,
		cfg:      cfg,
		cb:       gobreaker.NewCircuitBreaker(st),
		flushSig: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runFlushLoop()

	slog.Info("sink: opened", "path", cfg.DBPath)
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			direction  TEXT    NOT NULL,
			score      REAL    NOT NULL,
			mtf_score  REAL    NOT NULL,
			mtf_aligned INTEGER NOT NULL,
			entry_price REAL,
			tp_price   REAL,
			sl_price   REAL,
			atr        REAL,
			data       TEXT    NOT NULL,
			ts         INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals(symbol, ts);

		CREATE TABLE IF NOT EXISTS events (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT    NOT NULL,
			type   TEXT    NOT NULL,
			data   TEXT    NOT NULL,
			ts     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_symbol_ts ON events(symbol, ts);

		CREATE TABLE IF NOT EXISTS feature_snapshots (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			data   TEXT    NOT NULL,
			ts     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_tf ON feature_snapshots(symbol, tf);

		CREATE TABLE IF NOT EXISTS performance (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			entry_price  REAL    NOT NULL,
			tp_price     REAL    NOT NULL,
			sl_price     REAL    NOT NULL,
			outcome      TEXT    NOT NULL,
			close_price  REAL,
			pnl_pct      REAL,
			opened_at    INTEGER NOT NULL,
			closed_at    INTEGER,
			data         TEXT    NOT NULL,
			UNIQUE(symbol, opened_at)
		);
		CREATE INDEX IF NOT EXISTS idx_performance_symbol ON performance(symbol);
		CREATE INDEX IF NOT EXISTS idx_performance_outcome ON performance(outcome);
	`)
	return err
}

// AppendSignal queues a signal row for the next flush.
func (s *Store) AppendSignal(sig model.Signal) {
	s.mu.Lock()
	s.signalBatch = append(s.signalBatch, sig)
	full := len(s.signalBatch) >= s.cfg.BatchSize
	s.mu.Unlock()
	if full {
		s.nudge()
	}
}

// AppendEvent queues an event row for the next flush.
func (s *Store) AppendEvent(ev model.Event) {
	s.mu.Lock()
	s.eventBatch = append(s.eventBatch, ev)
	full := len(s.eventBatch) >= s.cfg.BatchSize
	s.mu.Unlock()
	if full {
		s.nudge()
	}
}

// AppendSnapshot queues a feature snapshot row for the next flush.
func (s *Store) AppendSnapshot(symbol string, tf int, f model.Features) {
	s.mu.Lock()
	s.snapBatch = append(s.snapBatch, snapshotRow{Symbol: symbol, TF: tf, F: f})
	full := len(s.snapBatch) >= s.cfg.BatchSize
	s.mu.Unlock()
	if full {
		s.nudge()
	}
}

// RecordPerformance upserts a tracked signal's current lifecycle state. The
// Tracker calls this both when a signal is armed (outcome "open") and again
// when it resolves, so a row is keyed on (symbol, opened_at) and the second
// call updates the first in place rather than appending a duplicate. Unlike
// the append-only streams this is written immediately: it's a low-volume,
// state-transition write where batching would only add recovery latency.
func (s *Store) RecordPerformance(t model.TrackedSignal) {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.upsertPerformance(t)
	})
	if err != nil {
		slog.Error("sink: record performance failed", "symbol", t.Symbol, "err", err)
	}
}

func (s *Store) upsertPerformance(t model.TrackedSignal) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var closedAt any
	if t.ClosedAt > 0 {
		closedAt = t.ClosedAt
	}
	_, err = s.db.Exec(`
		INSERT INTO performance (symbol, direction, entry_price, tp_price, sl_price, outcome, close_price, pnl_pct, opened_at, closed_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, opened_at) DO UPDATE SET
			outcome = excluded.outcome,
			close_price = excluded.close_price,
			pnl_pct = excluded.pnl_pct,
			closed_at = excluded.closed_at,
			data = excluded.data
	`, t.Symbol, t.Direction, t.EntryPrice, t.TPPrice, t.SLPrice, t.Outcome, t.ClosePrice, t.PnLPct, t.OpenedAt, closedAt, string(data))
	return err
}

// ListOpen returns every tracked signal still in the open state, for
// Tracker.RecoverOnStartup.
func (s *Store) ListOpen() ([]model.TrackedSignal, error) {
	rows, err := s.db.Query(`SELECT data FROM performance WHERE outcome = ? ORDER BY opened_at`, model.OutcomeOpen)
	if err != nil {
		return nil, fmt.Errorf("sink: list open: %w", err)
	}
	defer rows.Close()

	var out []model.TrackedSignal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t model.TrackedSignal
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			slog.Warn("sink: skipping unparsable performance row", "err", err)
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// nudge wakes the flush loop without blocking if a wake is already pending.
func (s *Store) nudge() {
	select {
	case s.flushSig <- struct{}{}:
	default:
	}
}

func (s *Store) runFlushLoop() {
	defer s.wg.Done()
	timer := time.NewTimer(s.cfg.FlushDelay)
	defer timer.Stop()
	for {
		select {
		case <-s.closeCh:
			s.flushAll()
			return
		case <-s.flushSig:
			s.flushAll()
			timer.Reset(s.cfg.FlushDelay)
		case <-timer.C:
			s.flushAll()
			timer.Reset(s.cfg.FlushDelay)
		}
	}
}

func (s *Store) flushAll() {
	s.mu.Lock()
	signals := s.signalBatch
	events := s.eventBatch
	snaps := s.snapBatch
	s.signalBatch = nil
	s.eventBatch = nil
	s.snapBatch = nil
	s.mu.Unlock()

	if len(signals) > 0 {
		if err := s.flushSignals(signals); err != nil {
			slog.Error("sink: flush signals failed", "count", len(signals), "err", err)
		}
	}
	if len(events) > 0 {
		if err := s.flushEvents(events); err != nil {
			slog.Error("sink: flush events failed", "count", len(events), "err", err)
		}
	}
	if len(snaps) > 0 {
		if err := s.flushSnapshots(snaps); err != nil {
			slog.Error("sink: flush snapshots failed", "count", len(snaps), "err", err)
		}
	}
}

func (s *Store) flushSignals(batch []model.Signal) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.insertSignals(batch)
	})
	return err
}

func (s *Store) insertSignals(batch []model.Signal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO signals (symbol, direction, score, mtf_score, mtf_aligned, entry_price, tp_price, sl_price, atr, data, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sig := range batch {
		data, err := json.Marshal(sig)
		if err != nil {
			tx.Rollback()
			return err
		}
		aligned := 0
		if sig.MTFAligned {
			aligned = 1
		}
		if _, err := stmt.Exec(sig.Symbol, sig.Direction, sig.Score, sig.MTFScore, aligned,
			sig.EntryPrice, sig.TPPrice, sig.SLPrice, sig.ATR, string(data), sig.Timestamp); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) flushEvents(batch []model.Event) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.insertEvents(batch)
	})
	return err
}

func (s *Store) insertEvents(batch []model.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO events (symbol, type, data, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(ev.Symbol, ev.Type, string(data), ev.TS); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) flushSnapshots(batch []snapshotRow) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.insertSnapshots(batch)
	})
	return err
}

func (s *Store) insertSnapshots(batch []snapshotRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO feature_snapshots (symbol, tf, data, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range batch {
		data, err := json.Marshal(row.F)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(row.Symbol, row.TF, string(data), row.F.TS); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close flushes any remaining batches and closes the database.
func (s *Store) Close() error {
	close(s.closeCh)
	s.wg.Wait()
	return s.db.Close()
}

// DB exposes the underlying database handle for liveness checks.
func (s *Store) DB() *sql.DB { return s.db }

var _ model.Sink = (*Store)(nil)
