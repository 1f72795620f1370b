package compositor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/annel0/worldmap/internal/cluster"
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/projection"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/annel0/worldmap/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegions(t *testing.T) *region.Index {
	idx, err := region.NewIndex([]region.Region{
		{ID: "spawn", Name: "Спавн", Color: "#ff8800", Dimension: dimension.Overworld,
			Vertices: []vec.Vec2{{X: 0, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 300}, {X: 0, Y: 300}}},
		{ID: "hub", Name: "Хаб", Color: "#aa0000", Dimension: dimension.Nether,
			Vertices: []vec.Vec2{{X: -50, Y: -50}, {X: 50, Y: -50}, {X: 0, Y: 50}}},
	}, 0)
	require.NoError(t, err)
	return idx
}

func newTestCompositor(t *testing.T, bus eventbus.EventBus) *Compositor {
	c := New(Options{Regions: testRegions(t), Policy: cluster.DefaultPolicy(), IconBase: "/icons/", Bus: bus})
	c.SetEntities(
		[]entity.Entity{
			entity.NewPin("1", "Магазин", vec.Vec3{X: 10, Y: 70, Z: 10}, dimension.Overworld, entity.PinShop),
			entity.NewPin("2", "Ферма", vec.Vec3{X: 1000, Y: 70, Z: 1000}, dimension.Overworld, entity.PinFarm),
			entity.NewPin("3", "Реликвия", vec.Vec3{X: 0, Y: 40, Z: 0}, dimension.Nether, entity.PinRelic),
		},
		[]entity.Entity{
			entity.NewProject("7", "Замок", vec.Vec3{X: 100, Y: 64, Z: 200}, dimension.Overworld, entity.StatusOngoing),
		},
		[]entity.Entity{
			entity.NewPlayer("steve", "Steve", vec.Vec3{X: 20, Y: 64, Z: 20}, dimension.Overworld, false),
			entity.NewPlayer("alex", "Alex", vec.Vec3{X: 30, Y: 64, Z: 30}, dimension.Overworld, true),
		},
	)
	return c
}

func defaultView(zoom int, dim dimension.Dimension) View {
	return View{Points: toggles.DefaultPoints(), Layers: toggles.DefaultLayers(), Zoom: zoom, Dimension: dim}
}

func markerIDs(ms []Marker) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Kind + ":" + m.ID
	}
	return out
}

func TestRender_CollapsedAndExpanded(t *testing.T) {
	c := newTestCompositor(t, nil)

	rs := c.Render(defaultView(0, dimension.Overworld))
	assert.Equal(t, "overworld", rs.TileLayer)
	require.Len(t, rs.Groups, 1)
	g := rs.Groups[0]
	assert.Equal(t, "spawn", g.RegionID)
	assert.True(t, g.Collapsed)
	assert.Equal(t, cluster.RegionBadge, g.Family)
	assert.Equal(t, "#ff8800", g.Badge.Color)
	assert.Equal(t, "3", g.Badge.Text)
	assert.Equal(t, []string{"pin:1", "project:7", "player:steve"}, markerIDs(g.Markers), "скрытый игрок не рисуется")

	require.NotNil(t, rs.Unassigned)
	assert.Equal(t, []string{"pin:2"}, markerIDs(rs.Unassigned.Markers))
	assert.Equal(t, cluster.NumericCluster, rs.Unassigned.Family)

	rs = c.Render(defaultView(3, dimension.Overworld))
	assert.False(t, rs.Groups[0].Collapsed)
	assert.Equal(t, cluster.NumericCluster, rs.Groups[0].Family)
	assert.Equal(t, float64(cluster.DefaultExpandedRadius), rs.Groups[0].Radius)
}

func TestRender_TogglesAndDimension(t *testing.T) {
	c := newTestCompositor(t, nil)

	v := defaultView(3, dimension.Overworld)
	off := false
	v.Points = toggles.Merge(v.Points, []toggles.Stored{{ID: entity.CategoryShops, Visible: &off}, {ID: entity.CategoryRegions, Visible: &off}})
	v.Layers = toggles.Merge(v.Layers, []toggles.Stored{{ID: "overworld", Visible: &off}})
	rs := c.Render(v)
	assert.Empty(t, rs.TileLayer)
	assert.Empty(t, rs.Polygons)
	require.Len(t, rs.Groups, 1)
	assert.Equal(t, []string{"project:7", "player:steve"}, markerIDs(rs.Groups[0].Markers))

	rs = c.Render(defaultView(3, dimension.Nether))
	require.Len(t, rs.Groups, 1)
	assert.Equal(t, "hub", rs.Groups[0].RegionID)
	assert.Equal(t, []string{"pin:3"}, markerIDs(rs.Groups[0].Markers))
	require.Len(t, rs.Polygons, 1)
	assert.Equal(t, "hub", rs.Polygons[0].RegionID)
}

func TestRender_SkipsBrokenEntity(t *testing.T) {
	c := newTestCompositor(t, nil)
	broken := entity.NewPin("", "?", vec.Vec3{}, dimension.Overworld, entity.PinShop)
	c.SetEntities([]entity.Entity{broken, entity.NewPin("1", "ok", vec.Vec3{X: 5, Z: 5}, dimension.Overworld, entity.PinShop)}, nil, nil)

	rs := c.Render(defaultView(3, dimension.Overworld))
	assert.Equal(t, 1, rs.Skipped)
	assert.Equal(t, 1, rs.MarkerCount())
}

func TestRender_EditablePolygons(t *testing.T) {
	c := newTestCompositor(t, nil)

	rs := c.Render(defaultView(3, dimension.Overworld))
	require.Len(t, rs.Polygons, 1)
	assert.False(t, rs.Polygons[0].Editable)
	assert.True(t, rs.Polygons[0].Label)
	assert.Equal(t, vec.Vec2Float{X: 300, Y: -300}, rs.Polygons[0].Vertices[2])

	_, err := c.BeginEdit("alice", "spawn")
	require.NoError(t, err)
	_, err = c.EditVertexMove("alice", "spawn", 2, vec.Vec2Float{X: 400, Y: -400})
	require.NoError(t, err)

	v := defaultView(3, dimension.Overworld)
	v.Editing = true
	rs = c.Render(v)
	assert.True(t, rs.Polygons[0].Editable)
	assert.Equal(t, vec.Vec2Float{X: 400, Y: -400}, rs.Polygons[0].Vertices[2], "живые вершины сессии")
	assert.Equal(t, 2, rs.Polygons[0].Dragging)
}

func TestDrop_FailedPatchRestoresPosition(t *testing.T) {
	c := newTestCompositor(t, nil)

	drop := projection.ToProjected(vec.Vec3{X: 105, Y: 64, Z: 202}, dimension.Overworld, dimension.Overworld)
	req, err := c.Drop(context.Background(), "7", drop)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 100, Y: 64, Z: 200}, req.From)
	assert.Equal(t, vec.Vec3{X: 105, Y: 64, Z: 202}, req.To)

	shown, _ := c.Entity(entity.KindProject, "7")
	assert.Equal(t, vec.Vec3{X: 105, Y: 64, Z: 202}, shown.Position, "оптимистичный перенос")
	assert.True(t, c.Pending("7"))

	s, err := c.Settle(req, nil, errors.New("validation failed"))
	require.ErrorIs(t, err, ErrPatchRejected)
	assert.False(t, s.Confirmed)
	assert.Equal(t, vec.Vec3{X: 100, Y: 64, Z: 200}, s.Position)

	shown, _ = c.Entity(entity.KindProject, "7")
	assert.Equal(t, vec.Vec3{X: 100, Y: 64, Z: 200}, shown.Position)
	assert.False(t, c.Pending("7"))

	rs := c.Render(defaultView(3, dimension.Overworld))
	for _, m := range rs.Groups[0].Markers {
		if m.Kind == "project" {
			assert.Equal(t, vec.Vec3{X: 100, Y: 64, Z: 200}, m.World)
			assert.True(t, m.Draggable)
		}
	}
}

func TestDrop_RoundsAndKeepsY(t *testing.T) {
	c := newTestCompositor(t, nil)
	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 105.2, Y: -201.7})
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 105, Y: 64, Z: 202}, req.To)
}

func TestDrop_SuccessConfirms(t *testing.T) {
	c := newTestCompositor(t, nil)
	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 150, Y: -250})
	require.NoError(t, err)

	updated := entity.NewProject("7", "Замок (перенесён)", vec.Vec3{X: 150, Y: 64, Z: 250}, dimension.Overworld, entity.StatusCompleted)
	s, err := c.Settle(req, &updated, nil)
	require.NoError(t, err)
	assert.True(t, s.Confirmed)

	confirmed, _ := c.Confirmed(entity.KindProject, "7")
	assert.Equal(t, vec.Vec3{X: 150, Y: 64, Z: 250}, confirmed)
	shown, _ := c.Entity(entity.KindProject, "7")
	assert.Equal(t, entity.StatusCompleted, shown.Status)
}

func TestDrop_PartialResponseConfirmsPosition(t *testing.T) {
	c := newTestCompositor(t, nil)
	before, _ := c.Entity(entity.KindProject, "7")
	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 150, Y: -250})
	require.NoError(t, err)

	partial := entity.Entity{Kind: entity.KindProject, ID: "7", Position: req.To}
	s, err := c.Settle(req, &partial, nil)
	require.NoError(t, err)
	assert.True(t, s.Confirmed)
	assert.False(t, c.Pending("7"))

	confirmed, _ := c.Confirmed(entity.KindProject, "7")
	assert.Equal(t, req.To, confirmed)
	shown, _ := c.Entity(entity.KindProject, "7")
	assert.Equal(t, before.Name, shown.Name)
	assert.Equal(t, before.Dimension, shown.Dimension)
	assert.Equal(t, req.To, shown.Position)
}

func TestDrag_Guards(t *testing.T) {
	c := newTestCompositor(t, nil)

	assert.ErrorIs(t, c.BeginDrag(entity.KindPin, "1"), ErrNotDraggable)
	assert.ErrorIs(t, c.BeginDrag(entity.KindProject, "404"), ErrUnknownEntity)
	require.NoError(t, c.BeginDrag(entity.KindProject, "7"))

	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 1, Y: -1})
	require.NoError(t, err)
	assert.ErrorIs(t, c.BeginDrag(entity.KindProject, "7"), ErrPatchInFlight)
	_, err = c.Drop(context.Background(), "7", vec.Vec2Float{X: 2, Y: -2})
	assert.ErrorIs(t, err, ErrPatchInFlight)

	_, err = c.Settle(req, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, c.BeginDrag(entity.KindProject, "7"))
}

func TestSetEntities_RemovalCancelsPatch(t *testing.T) {
	c := newTestCompositor(t, nil)
	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 1, Y: -1})
	require.NoError(t, err)

	assert.Equal(t, 1, c.SetEntities(nil, nil, nil))
	assert.ErrorIs(t, req.Context().Err(), context.Canceled)

	s, err := c.Settle(req, nil, errors.New("late failure"))
	require.NoError(t, err)
	assert.True(t, s.Stale)
}

func TestSetEntities_KeepsOptimisticPosition(t *testing.T) {
	c := newTestCompositor(t, nil)
	req, err := c.Drop(context.Background(), "7", vec.Vec2Float{X: 500, Y: -500})
	require.NoError(t, err)

	c.SetEntities(nil, []entity.Entity{
		entity.NewProject("7", "Замок", vec.Vec3{X: 100, Y: 64, Z: 200}, dimension.Overworld, entity.StatusOngoing),
	}, nil)
	shown, _ := c.Entity(entity.KindProject, "7")
	assert.Equal(t, req.To, shown.Position)

	_, err = c.Settle(req, nil, errors.New("boom"))
	require.Error(t, err)
	shown, _ = c.Entity(entity.KindProject, "7")
	assert.Equal(t, vec.Vec3{X: 100, Y: 64, Z: 200}, shown.Position)
}

func TestEdit_CommitUpdatesIndexAndPublishes(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var events []*eventbus.Envelope
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	c := newTestCompositor(t, bus)
	_, err = c.EditEdgeClick("alice", "spawn", vec.Vec2Float{X: 150, Y: 0})
	assert.ErrorIs(t, err, ErrNoEditSession)

	_, err = c.BeginEdit("alice", "spawn")
	require.NoError(t, err)
	st, err := c.EditEdgeClick("alice", "spawn", vec.Vec2Float{X: 150, Y: 0})
	require.NoError(t, err)
	assert.Len(t, st.Vertices, 5)
	assert.Equal(t, vec.Vec2Float{X: 150, Y: 0}, st.Vertices[1])

	r, _ := c.Regions().Get("spawn")
	assert.Equal(t, vec.Vec2{X: 150, Y: 0}, r.Vertices[1])

	_, err = c.EditVertexRemove("alice", "spawn", 1)
	require.NoError(t, err)
	r, _ = c.Regions().Get("spawn")
	assert.Len(t, r.Vertices, 4)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, eventbus.TypeVertexAdded, events[0].EventType)
	assert.Equal(t, eventbus.TypeVertexRemoved, events[1].EventType)
	edit, err := eventbus.Decode[eventbus.PolygonEdit](events[0])
	require.NoError(t, err)
	assert.Equal(t, "spawn", edit.RegionID)
	assert.Equal(t, 1, edit.Index)

	_, err = c.BeginEdit("alice", "nope")
	assert.ErrorIs(t, err, region.ErrUnknownRegion)
}

func TestEdit_SecondEditorIsRefused(t *testing.T) {
	c := newTestCompositor(t, nil)

	_, err := c.BeginEdit("alice", "spawn")
	require.NoError(t, err)
	_, err = c.EditVertexMove("alice", "spawn", 2, vec.Vec2Float{X: 400, Y: -400})
	require.NoError(t, err)

	_, err = c.BeginEdit("bob", "hub")
	assert.ErrorIs(t, err, ErrEditInProgress)
	_, err = c.EditVertexEnd("bob", "spawn")
	assert.ErrorIs(t, err, ErrEditInProgress)
	assert.ErrorIs(t, c.EndEdit("bob"), ErrEditInProgress)

	// живая сессия первого редактора не потеряна
	st, ok := c.Editing()
	require.True(t, ok)
	assert.Equal(t, "spawn", st.RegionID)
	assert.Equal(t, 2, st.DragIndex)
	assert.Equal(t, vec.Vec2Float{X: 400, Y: -400}, st.Vertices[2])

	// свою сессию редактор может переоткрыть на другом регионе
	st, err = c.BeginEdit("alice", "hub")
	require.NoError(t, err)
	assert.Equal(t, "hub", st.RegionID)

	require.NoError(t, c.EndEdit("alice"))
	_, err = c.BeginEdit("bob", "spawn")
	assert.NoError(t, err)
}
