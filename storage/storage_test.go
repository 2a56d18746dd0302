package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waveport/go-portal/storage"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := storage.NewMemoryStore()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("sb-proj-auth-token", "payload")
	v, ok := s.Get("sb-proj-auth-token")
	assert.True(t, ok)
	assert.Equal(t, "payload", v)

	s.Set("sb-proj-auth-token", "updated")
	v, _ = s.Get("sb-proj-auth-token")
	assert.Equal(t, "updated", v)
	assert.Equal(t, 1, s.Len())

	s.Remove("sb-proj-auth-token")
	_, ok = s.Get("sb-proj-auth-token")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreKeys(t *testing.T) {
	s := storage.NewMemoryStore()
	s.Set("a", "1")
	s.Set("b", "2")

	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())

	// removing an absent key is a no-op
	s.Remove("c")
	assert.Equal(t, 2, s.Len())
}
