package noderegistry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raro-systems/raro/pkg/config"
)

func TestRegistry_SeedAndGet(t *testing.T) {
	r := New()
	r.Seed("run-1", []config.AgentNodeConfig{
		{ID: "a", Prompt: "do a"},
		{ID: "b", Prompt: "do b", DependsOn: []string{"a"}},
	})

	n, ok := r.Get("run-1", "b")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, n.DependsOn)

	_, ok = r.Get("run-1", "missing")
	assert.False(t, ok)
}

func TestRegistry_SetOverwritesAndDeleteRemoves(t *testing.T) {
	r := New()
	r.Seed("run-1", []config.AgentNodeConfig{{ID: "a", Prompt: "v1"}})
	r.Set("run-1", config.AgentNodeConfig{ID: "a", Prompt: "v2"})

	n, ok := r.Get("run-1", "a")
	assert.True(t, ok)
	assert.Equal(t, "v2", n.Prompt)

	r.Delete("run-1", "a")
	_, ok = r.Get("run-1", "a")
	assert.False(t, ok)
}

func TestRegistry_AllReturnsSnapshot(t *testing.T) {
	r := New()
	r.Seed("run-1", []config.AgentNodeConfig{{ID: "a"}, {ID: "b"}})

	all := r.All("run-1")
	assert.Len(t, all, 2)

	all["a"] = config.AgentNodeConfig{ID: "a", Prompt: "mutated-outside"}
	n, _ := r.Get("run-1", "a")
	assert.Empty(t, n.Prompt, "mutating the snapshot must not affect the registry")
}

func TestRegistry_MutateDependsOn(t *testing.T) {
	r := New()
	r.Seed("run-1", []config.AgentNodeConfig{{ID: "b", DependsOn: []string{"a"}}})
	r.MutateDependsOn("run-1", "b", []string{"m"})

	n, _ := r.Get("run-1", "b")
	assert.Equal(t, []string{"m"}, n.DependsOn)
}

func TestRegistry_DifferentRunsAreIsolated(t *testing.T) {
	r := New()
	r.Seed("run-1", []config.AgentNodeConfig{{ID: "a", Prompt: "run1"}})
	r.Seed("run-2", []config.AgentNodeConfig{{ID: "a", Prompt: "run2"}})

	n1, _ := r.Get("run-1", "a")
	n2, _ := r.Get("run-2", "a")
	assert.Equal(t, "run1", n1.Prompt)
	assert.Equal(t, "run2", n2.Prompt)
}
