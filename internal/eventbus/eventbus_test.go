package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/worldmap/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, bus EventBus, f Filter) (func(n int) []*Envelope, Subscription) {
	var mu sync.Mutex
	var got []*Envelope
	sub, err := bus.Subscribe(context.Background(), f, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	wait := func(n int) []*Envelope {
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) >= n
		}, time.Second, 5*time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return append([]*Envelope(nil), got...)
	}
	return wait, sub
}

func TestMemoryBus_FilterAndOrder(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	waitAll, _ := collect(t, bus, Filter{})
	waitMarkers, _ := collect(t, bus, Filter{Types: []string{TypeMarkerRelocated}})

	for i := 0; i < 5; i++ {
		ev, err := NewEnvelope(TypeVertexMoved, PolygonEdit{RegionID: "spawn", Index: i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	ev, err := NewEnvelope(TypeMarkerRelocated, MarkerRelocated{EntityID: "7", To: vec.Vec3{X: 1}})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	all := waitAll(6)
	for i := 0; i < 5; i++ {
		edit, err := Decode[PolygonEdit](all[i])
		require.NoError(t, err)
		assert.Equal(t, i, edit.Index, "порядок доставки сохраняется")
	}

	markers := waitMarkers(1)
	require.Len(t, markers, 1)
	moved, err := Decode[MarkerRelocated](markers[0])
	require.NoError(t, err)
	assert.Equal(t, "7", moved.EntityID)
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	wait, sub := collect(t, bus, Filter{})
	ev, _ := NewEnvelope(TypeVertexAdded, PolygonEdit{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	wait(1)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Eventually(t, func() bool { return bus.Metrics().Published == 2 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	ev, _ := NewEnvelope(TypeVertexRemoved, PolygonEdit{})
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrBusClosed)
}

func TestNewEnvelope_Priority(t *testing.T) {
	ev, err := NewEnvelope(TypeRelocateFailed, RelocateFailed{EntityID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 5, ev.Priority)
	assert.Equal(t, SourceMap, ev.Source)
	assert.NotEmpty(t, ev.ID)
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	me, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	ev, _ := NewEnvelope(TypeVertexAdded, PolygonEdit{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := me.collect(Stats{})
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))
	me.collect(prev)
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published), "повторный сбор не удваивает счётчик")

	_, err = NewMetricsExporter(bus, reg)
	assert.Error(t, err, "повторная регистрация отклоняется")
}
