// Package rawstore implements the Raw Store contract from spec.md §4.1:
// a keyed, TTL-bounded, process-local store safe for many concurrent
// readers and writers. Modeled in-process (sharded maps with lazy
// expiration) per spec's explicit "may be in-process... either way the
// contract is atomic per-key map write and atomic push-then-trim" — the
// single-goroutine-per-component design elsewhere in this repo means the
// store itself is the one place genuinely shared across tasks, so it gets
// its own locking instead of the single-writer discipline used everywhere
// else.
package rawstore

import (
	"sync"
	"time"

	"signalengine/internal/model"
)

const shardCount = 32

type entry struct {
	value    any
	expireAt int64 // unix nanos; 0 = no expiry
}

type shard struct {
	mu   sync.RWMutex
	data map[string]entry
}

// Store is a sharded, TTL-bounded in-memory key/value and key/sequence
// store. Zero value is not usable; use New.
type Store struct {
	shards [shardCount]*shard
	now    func() time.Time // overridable for tests
}

// New creates an empty Store.
func New() *Store {
	s := &Store{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]entry, 256)}
	}
	return s
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[fnv32(key)%shardCount]
}

func (s *Store) expiry(ttl int64) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(time.Duration(ttl) * time.Second).UnixNano()
}

// SetScalar stores an arbitrary value under key with a TTL in seconds (0 =
// no expiry).
func (s *Store) SetScalar(key string, value any, ttl int64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = entry{value: value, expireAt: s.expiry(ttl)}
	sh.mu.Unlock()
}

// GetScalar retrieves a scalar value, observing lazy TTL expiry.
func (s *Store) GetScalar(key string) (any, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.data[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expireAt != 0 && s.now().UnixNano() > e.expireAt {
		return nil, false
	}
	return e.value, true
}

// SetMap stores a string-keyed map atomically under key. Readers observe
// either the old or the new map, never a torn write, because the map value
// itself is replaced wholesale rather than mutated in place.
func (s *Store) SetMap(key string, value map[string]string, ttl int64) {
	cp := make(map[string]string, len(value))
	for k, v := range value {
		cp[k] = v
	}
	s.SetScalar(key, cp, ttl)
}

// GetMap returns a copy of the map stored at key.
func (s *Store) GetMap(key string) (map[string]string, bool) {
	v, ok := s.GetScalar(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]string)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out, true
}

// PushFrontTrim atomically prepends value to the newest-first sequence
// stored at key and trims the tail to cap. The TTL refreshes on every push,
// matching the teacher's TTL-on-write convention for hot keys.
func (s *Store) PushFrontTrim(key string, value any, cap int, ttl int64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	var seq []any
	if ok {
		if existing, ok2 := e.value.([]any); ok2 {
			seq = existing
		}
	}
	seq = append([]any{value}, seq...)
	if len(seq) > cap {
		seq = seq[:cap]
	}
	sh.data[key] = entry{value: seq, expireAt: s.expiry(ttl)}
}

// Range returns up to n newest-first elements stored at key (all of them if
// n <= 0), or nil if the key is absent or expired.
func (s *Store) Range(key string, n int) []any {
	v, ok := s.GetScalar(key)
	if !ok {
		return nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil
	}
	if n <= 0 || n >= len(seq) {
		out := make([]any, len(seq))
		copy(out, seq)
		return out
	}
	out := make([]any, n)
	copy(out, seq[:n])
	return out
}

// Len reports the current length of the sequence at key, 0 if absent.
func (s *Store) Len(key string) int {
	return len(s.Range(key, -1))
}

var _ model.RawStore = (*Store)(nil)
