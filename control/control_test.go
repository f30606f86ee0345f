package control_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/control"
)

func TestMetricsRegistry(t *testing.T) {
	mr := control.NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())

	mr.Set("pool.leased", 3)
	assert.EqualValues(t, 2, mr.Add("requests", 2))
	assert.EqualValues(t, 5, mr.Add("requests", 3))
	assert.False(t, mr.Updated().IsZero())

	v, ok := mr.Get("pool.leased")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"pool.leased", "requests"}, mr.Keys())

	snap := mr.GetSnapshot()
	snap["requests"] = int64(0)
	got, _ := mr.Get("requests")
	assert.EqualValues(t, 5, got)
}

func TestMetricsRegistry_ConcurrentAdd(t *testing.T) {
	mr := control.NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				mr.Add("hits", 1)
			}
		}()
	}
	wg.Wait()
	v, _ := mr.Get("hits")
	assert.EqualValues(t, 800, v)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("broken", func() any { panic("nil map") })
	dp.RegisterProbe("gone", func() any { return true })
	dp.UnregisterProbe("gone")

	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Equal(t, "probe panic: nil map", state["broken"])
	assert.NotContains(t, state, "gone")
}

func TestControl_Snapshot(t *testing.T) {
	c := control.New()
	c.Metrics.Set("a", 1)
	c.Metrics.Set("b", 1)
	c.Debug.RegisterProbe("b", func() any { return 2 })
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, c.Snapshot())
}
