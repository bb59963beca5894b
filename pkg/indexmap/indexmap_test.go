package indexmap

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertDual checks that forward and inverse describe the same relation.
func assertDual(t *testing.T, m *Map) {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, vals := range m.forward {
		require.NotEmpty(t, vals, "empty forward set left for %s", k)
		for v := range vals {
			require.True(t, m.inverse[v].Has(k), "inverse(%s) missing %s", v, k)
		}
	}
	for v, keys := range m.inverse {
		require.NotEmpty(t, keys, "empty inverse set left for %s", v)
		for k := range keys {
			require.True(t, m.forward[k].Has(v), "forward(%s) missing %s", k, v)
		}
	}
}

func TestSetReplacesForwardAndFixesInverse(t *testing.T) {
	m := New()
	m.Set("/docs/a.md", []string{"/docs", "spaces://#todo"})
	m.Set("/docs/b.md", []string{"/docs"})

	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, m.GetInverse("/docs").Sorted())

	m.Set("/docs/a.md", []string{"/notes"})
	assert.Equal(t, []string{"/docs/b.md"}, m.GetInverse("/docs").Sorted())
	assert.Empty(t, m.GetInverse("spaces://#todo"))
	assert.True(t, m.Has("/docs/a.md", "/notes"))

	m.Set("/docs/a.md", nil)
	assert.Empty(t, m.Get("/docs/a.md"))
	assert.NotContains(t, m.Keys(), "/docs/a.md")
	assertDual(t, m)
}

func TestGetReturnsCopies(t *testing.T) {
	m := New()
	m.Set("k", []string{"v"})

	got := m.Get("k")
	got["w"] = struct{}{}
	assert.False(t, m.Has("k", "w"))

	assert.NotNil(t, m.Get("missing"))
	assert.NotNil(t, m.GetInverse("missing"))
}

func TestDeleteAndDeleteInverse(t *testing.T) {
	m := New()
	m.Set("a", []string{"x", "y"})
	m.Set("b", []string{"x"})

	m.Delete("a")
	assert.Empty(t, m.Get("a"))
	assert.Equal(t, []string{"b"}, m.GetInverse("x").Sorted())
	assert.Empty(t, m.GetInverse("y"))

	m.DeleteInverse("x")
	assert.Empty(t, m.Get("b"))
	assert.Empty(t, m.Keys())
	assert.Empty(t, m.Values())
	assertDual(t, m)
}

func TestRenameClosure(t *testing.T) {
	m := New()
	m.Set("/docs/a.md", []string{"/docs", "/all"})
	m.Set("/notes/n.md", []string{"/docs/a.md"})

	m.Rename("/docs/a.md", "/docs/b.md")
	m.RenameInverse("/docs/a.md", "/docs/b.md")

	assert.Empty(t, m.Get("/docs/a.md"))
	assert.Empty(t, m.GetInverse("/docs/a.md"))
	assert.Equal(t, []string{"/all", "/docs"}, m.Get("/docs/b.md").Sorted())
	assert.Equal(t, []string{"/notes/n.md"}, m.GetInverse("/docs/b.md").Sorted())
	assert.True(t, m.GetInverse("/docs").Has("/docs/b.md"))
	assertDual(t, m)
}

func TestRenameMergesIntoExistingKey(t *testing.T) {
	m := New()
	m.Set("old", []string{"x"})
	m.Set("new", []string{"y"})

	m.Rename("old", "new")
	assert.Equal(t, []string{"x", "y"}, m.Get("new").Sorted())
	assertDual(t, m)
}

func TestDualityHoldsAfterRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := New()
	ids := func() string { return fmt.Sprintf("n%d", rng.Intn(12)) }

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0:
			n := rng.Intn(4)
			vals := make([]string, n)
			for j := range vals {
				vals[j] = ids()
			}
			m.Set(ids(), vals)
		case 1:
			m.Delete(ids())
		case 2:
			m.DeleteInverse(ids())
		case 3:
			m.Rename(ids(), ids())
		case 4:
			m.RenameInverse(ids(), ids())
		}
	}
	assertDual(t, m)

	clone := m.Clone()
	assert.Equal(t, m.Keys(), clone.Keys())
	assert.Equal(t, m.Values(), clone.Values())
}

func TestConcurrentReadersSeeConsistentState(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			key := fmt.Sprintf("k%d", i%5)
			m.Set(key, []string{fmt.Sprintf("v%d", i%7)})
			m.Rename(key, fmt.Sprintf("k%d", (i+1)%5))
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m.mu.RLock()
				for k, vals := range m.forward {
					for v := range vals {
						if !m.inverse[v].Has(k) {
							m.mu.RUnlock()
							t.Errorf("inconsistent relation %s -> %s", k, v)
							return
						}
					}
				}
				m.mu.RUnlock()
			}
		}()
	}
	wg.Wait()
	assertDual(t, m)
}
