package cachereg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_SetGetDelete(t *testing.T) {
	r := New()

	_, ok := r.Get("run-1")
	assert.False(t, ok)

	r.Set("run-1", "cache-handle-abc")
	h, ok := r.Get("run-1")
	assert.True(t, ok)
	assert.Equal(t, "cache-handle-abc", h)

	r.Delete("run-1")
	_, ok = r.Get("run-1")
	assert.False(t, ok)
}
