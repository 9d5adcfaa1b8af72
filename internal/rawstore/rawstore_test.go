package rawstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetMap(t *testing.T) {
	s := New()
	s.SetMap("features:60:BTCUSDT", map[string]string{"atr": "1.5"}, 0)

	m, ok := s.GetMap("features:60:BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "1.5", m["atr"])

	// Mutating the returned copy must not affect the store.
	m["atr"] = "999"
	m2, _ := s.GetMap("features:60:BTCUSDT")
	assert.Equal(t, "1.5", m2["atr"])
}

func TestPushFrontTrimCap(t *testing.T) {
	s := New()
	key := KlinesKey("BTCUSDT", 60)
	for i := 0; i < 10; i++ {
		s.PushFrontTrim(key, i, 5, 0)
	}
	seq := s.Range(key, -1)
	require.Len(t, seq, 5)
	// Newest-first: last pushed (9) must be at the front.
	assert.Equal(t, 9, seq[0])
	assert.Equal(t, 5, seq[4])
}

func TestScalarTTLExpiry(t *testing.T) {
	s := New()
	fixed := s.now
	s.SetScalar("mark_price:BTCUSDT", 100.0, 1)
	v, ok := s.GetScalar("mark_price:BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	s.now = func() time.Time { return fixed().Add(2 * time.Second) }
	_, ok = s.GetScalar("mark_price:BTCUSDT")
	assert.False(t, ok)
}
