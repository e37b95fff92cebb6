package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_SetAndGet(t *testing.T) {
	s := New()
	s.Set("run-1", "agent-a", "tok-123")

	tok, ok := s.Get("run-1", "agent-a")
	assert.True(t, ok)
	assert.Equal(t, "tok-123", tok)

	_, ok = s.Get("run-1", "agent-b")
	assert.False(t, ok)

	_, ok = s.Get("run-2", "agent-a")
	assert.False(t, ok)
}

func TestStore_FirstAvailable_RespectsParentOrder(t *testing.T) {
	s := New()
	s.Set("run-1", "parent-b", "tok-b")
	s.Set("run-1", "parent-c", "tok-c")

	tok, ok := s.FirstAvailable("run-1", []string{"parent-a", "parent-b", "parent-c"})
	assert.True(t, ok)
	assert.Equal(t, "tok-b", tok)
}

func TestStore_FirstAvailable_NoneFound(t *testing.T) {
	s := New()
	_, ok := s.FirstAvailable("run-1", []string{"parent-a"})
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := New()
	s.Set("run-1", "agent-a", "tok-123")
	s.Delete("run-1")

	_, ok := s.Get("run-1", "agent-a")
	assert.False(t, ok)
}
