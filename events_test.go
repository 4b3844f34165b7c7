package increquery

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusEventSinkCountsExecutionsAndValidations(t *testing.T) {
	registry := prometheus.NewRegistry()
	sink := NewPrometheusEventSink(WithRegistry(registry))

	db := NewDatabase().WithEventSink(sink)
	leaf := NewInput[int](db, "leaf", "x", 1, Low)
	table := NewTable[string, int]("counted", func(d Database, key string) int {
		return leaf.Get(d) + 1
	}, DefaultPolicy[int]())

	rt := db.NewRuntime()
	_, err := table.Read(rt, "a")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.executions.WithLabelValues("counted")))

	// Same revision, second read: no new execution, no validation either
	// (the fast path never touches the event sink at all).
	_, err = table.Read(rt, "a")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.executions.WithLabelValues("counted")))

	leaf.Set(2)
	rt2 := db.NewRuntime()
	_, err = table.Read(rt2, "a")
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.executions.WithLabelValues("counted")))
}

func TestPrometheusEventSinkCountsCyclesAndEvictions(t *testing.T) {
	registry := prometheus.NewRegistry()
	sink := NewPrometheusEventSink(WithRegistry(registry), WithNamespace("cyc"))

	db := NewDatabase().WithEventSink(sink)
	var self *Table[string, int]
	self = NewTable[string, int]("selfref", func(d Database, key string) int {
		return ReadDependency(d, self, key)
	}, DefaultPolicy[int]())

	rt := db.NewRuntime()
	_, err := self.Read(rt, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.cycles.WithLabelValues("selfref")))

	evicted := NewTable[int, int]("evictable", func(d Database, key int) int { return key }, DefaultPolicy[int]())
	evicted.SetEventSink(sink)
	rt2 := db.NewRuntime()
	_, err = evicted.Read(rt2, 1)
	require.NoError(t, err)
	evicted.DropAll()
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.evictions.WithLabelValues("evictable")))
}

func TestTracingEventSinkOpensAndClosesSpanWithoutPanicking(t *testing.T) {
	sink := NewTracingEventSink()
	db := NewDatabase().WithEventSink(sink)
	table := NewTable[string, int]("traced", func(d Database, key string) int { return 1 }, DefaultPolicy[int]())

	rt := db.NewRuntime()
	v, err := table.Read(rt, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Empty(t, sink.spans, "every opened span must be closed by EventDidExecute")
}
