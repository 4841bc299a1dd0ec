package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	s := New()
	s.Set("k", "v", nil)
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, ok := s.Get("nope")
	require.False(t, ok)
}

func TestExpiryLazy(t *testing.T) {
	s := New()
	past := time.Now().Add(-time.Second)
	s.Set("k", "v", &past)
	_, ok := s.Get("k")
	require.False(t, ok)
	require.False(t, s.Exists("k"))
}

func TestExpiryFuture(t *testing.T) {
	s := New()
	future := time.Now().Add(time.Hour)
	s.Set("k", "v", &future)
	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestIncrByFromAbsent(t *testing.T) {
	s := New()
	n, err := s.IncrBy("counter", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.IncrBy("counter", 5)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
}

func TestIncrByNotInteger(t *testing.T) {
	s := New()
	s.Set("k", "not-a-number", nil)
	_, err := s.IncrBy("k", 1)
	require.ErrorIs(t, err, ErrNotInteger)
}

func TestIncrByClearsTTL(t *testing.T) {
	s := New()
	future := time.Now().Add(time.Hour)
	s.Set("k", "1", &future)
	_, err := s.IncrBy("k", 1)
	require.NoError(t, err)

	s.mu.RLock()
	v := s.data["k"]
	s.mu.RUnlock()
	require.Nil(t, v.ExpiresAt)
}

func TestKeysSkipsExpired(t *testing.T) {
	s := New()
	past := time.Now().Add(-time.Second)
	s.Set("dead", "v", &past)
	s.Set("alive", "v", nil)

	keys := s.Keys()
	require.Equal(t, []string{"alive"}, keys)
}

func TestType(t *testing.T) {
	s := New()
	require.Equal(t, "", s.Type("missing"))
	s.Set("k", "v", nil)
	require.Equal(t, "string", s.Type("k"))
}
