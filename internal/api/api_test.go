package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/worldmap/internal/auth"
	"github.com/annel0/worldmap/internal/cluster"
	"github.com/annel0/worldmap/internal/compositor"
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/storage"
	"github.com/annel0/worldmap/internal/tiles"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/annel0/worldmap/internal/vec"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	patched []vec.Vec3
}

func (f *fakeSource) ListPins(ctx context.Context) ([]entity.Entity, error) {
	return []entity.Entity{
		entity.NewPin("1", "Лавка", vec.Vec3{X: 10, Y: 70, Z: 10}, dimension.Overworld, entity.PinShop),
	}, nil
}

func (f *fakeSource) ListProjects(ctx context.Context) ([]entity.Entity, error) {
	return []entity.Entity{
		entity.NewProject("7", "Замок", vec.Vec3{X: 50, Y: 64, Z: 50}, dimension.Overworld, entity.StatusOngoing),
	}, nil
}

func (f *fakeSource) ListPlayers(ctx context.Context) ([]entity.Entity, error) { return nil, nil }

func (f *fakeSource) PatchProjectCoordinates(ctx context.Context, id string, pos vec.Vec3) (entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, pos)
	return entity.NewProject(id, "Замок", pos, dimension.Overworld, entity.StatusOngoing), nil
}

type testEnv struct {
	server *RestServer
	loop   *compositor.Loop
	source *fakeSource
	bus    eventbus.EventBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/overworld/2/0/0/1/2" {
			w.Write([]byte("tile-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(upstream.Close)

	regions, err := region.NewIndex([]region.Region{{
		ID:        "village",
		Name:      "Деревня",
		Color:     "#ff0000",
		Dimension: dimension.Overworld,
		Vertices:  []vec.Vec2{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}},
	}}, 0)
	require.NoError(t, err)

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })

	src := &fakeSource{}
	loop := compositor.NewLoop(compositor.New(compositor.Options{
		Regions: regions,
		Policy:  cluster.DefaultPolicy(),
		Bus:     bus,
	}), src)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx, 0)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	require.NoError(t, loop.Refresh(context.Background()))

	rs := NewRestServer(Config{
		Loop:     loop,
		Toggles:  toggles.NewStore(storage.NewMemoryToggleRepo()),
		Regions:  regions,
		Tiles:    tiles.NewScheme(upstream.URL, tiles.DefaultZoomBounds()),
		Fetcher:  tiles.NewFetcher(upstream.Client(), nil, 0),
		Bus:      bus,
		Registry: prometheus.NewRegistry(),
	})
	return &testEnv{server: rs, loop: loop, source: src, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(r.Data, data))
	}
	return r
}

// renderedIDs собирает id маркеров из ответа /api/render
func renderedIDs(t *testing.T, w *httptest.ResponseRecorder) (ids []string, tileLayer string) {
	t.Helper()
	type group struct {
		Markers []struct {
			ID string `json:"id"`
		} `json:"markers"`
	}
	var set struct {
		TileLayer  string  `json:"tile_layer"`
		Groups     []group `json:"groups"`
		Unassigned *group  `json:"unassigned"`
	}
	decode(t, w, &set)
	for _, g := range set.Groups {
		for _, m := range g.Markers {
			ids = append(ids, m.ID)
		}
	}
	if set.Unassigned != nil {
		for _, m := range set.Unassigned.Markers {
			ids = append(ids, m.ID)
		}
	}
	return ids, set.TileLayer
}

func bearer(t *testing.T, subject string, editor bool) map[string]string {
	token, err := auth.GenerateJWT(subject, editor, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRender_RespectsClientToggles(t *testing.T) {
	env := newTestEnv(t)
	alice := map[string]string{clientIDHeader: "alice"}

	w := env.do(t, http.MethodGet, "/api/render?zoom=3&dimension=overworld", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	ids, layer := renderedIDs(t, w)
	assert.ElementsMatch(t, []string{"1", "7"}, ids)
	assert.Equal(t, "overworld", layer)

	hidden := false
	w = env.do(t, http.MethodPut, "/api/toggles/points", []toggles.Stored{{ID: entity.CategoryProjects, Visible: &hidden}}, alice)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPut, "/api/toggles/layers", []toggles.Stored{{ID: "overworld", Visible: &hidden}}, alice)
	require.Equal(t, http.StatusOK, w.Code)

	ids, layer = renderedIDs(t, env.do(t, http.MethodGet, "/api/render?zoom=3", nil, alice))
	assert.Equal(t, []string{"1"}, ids)
	assert.Empty(t, layer)

	// Другой клиент видит значения по умолчанию
	ids, _ = renderedIDs(t, env.do(t, http.MethodGet, "/api/render?zoom=3", nil, map[string]string{clientIDHeader: "bob"}))
	assert.Len(t, ids, 2)
}

func TestRender_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/render?dimension=aether", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/render?zoom=far", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/render?editing=maybe", nil, nil).Code)
}

func TestToggles_LoadUpdateReset(t *testing.T) {
	env := newTestEnv(t)

	var state toggles.State
	w := env.do(t, http.MethodGet, "/api/toggles", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &state)
	assert.Equal(t, toggles.DefaultPoints(), state.Points)
	assert.Equal(t, toggles.DefaultLayers(), state.Layers)

	// Клиент определяется по subject токена
	carol := bearer(t, "carol", false)
	off := false
	w = env.do(t, http.MethodPut, "/api/toggles/points", []toggles.Stored{{ID: entity.CategoryRegions, LabelVisible: &off}}, carol)
	require.Equal(t, http.StatusOK, w.Code)

	decode(t, env.do(t, http.MethodGet, "/api/toggles", nil, carol), &state)
	regions, found := state.Points.Get(entity.CategoryRegions)
	require.True(t, found)
	assert.True(t, regions.Visible)
	assert.False(t, regions.LabelVisible)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/toggles/points", nil, carol).Code)
	decode(t, env.do(t, http.MethodGet, "/api/toggles", nil, carol), &state)
	assert.Equal(t, toggles.DefaultPoints(), state.Points)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/toggles/colors", []toggles.Stored{}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/toggles/points", "nope", nil).Code)
}

func TestMarkers_DragAndDrop(t *testing.T) {
	env := newTestEnv(t)
	editor := bearer(t, "alice", true)

	w := env.do(t, http.MethodPost, "/api/markers/1/drag?kind=pin", nil, editor)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/markers/404/drag", nil, editor)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/markers/7/drag", nil, editor)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/markers/7/drop", vec.Vec2Float{X: 20, Y: -30}, editor)
	require.Equal(t, http.StatusAccepted, w.Code)
	var req compositor.PatchRequest
	decode(t, w, &req)
	assert.Equal(t, vec.Vec3{X: 20, Y: 64, Z: 30}, req.To)
	assert.Equal(t, vec.Vec3{X: 50, Y: 64, Z: 50}, req.From)

	env.loop.WaitPatches()
	env.source.mu.Lock()
	assert.Equal(t, []vec.Vec3{{X: 20, Y: 64, Z: 30}}, env.source.patched)
	env.source.mu.Unlock()

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/markers/7/drag?kind=ship", nil, editor).Code)
}

func TestMarkers_RequireEditorToken(t *testing.T) {
	env := newTestEnv(t)
	drop := vec.Vec2Float{X: 60, Y: -60}

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/markers/7/drag", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/markers/7/drop", drop, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/markers/7/drop", drop,
		map[string]string{"Authorization": "Bearer garbage"}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/markers/7/drop", drop, bearer(t, "bob", false)).Code)

	env.loop.WaitPatches()
	env.source.mu.Lock()
	assert.Empty(t, env.source.patched)
	env.source.mu.Unlock()
}

func TestRegions_List(t *testing.T) {
	env := newTestEnv(t)

	var out struct {
		Regions []region.Region `json:"regions"`
		Total   int             `json:"total"`
	}
	w := env.do(t, http.MethodGet, "/api/regions?dimension=overworld", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, "village", out.Regions[0].ID)

	decode(t, env.do(t, http.MethodGet, "/api/regions?dimension=nether", nil, nil), &out)
	assert.Zero(t, out.Total)
}

func TestRegions_EditRequiresEditorToken(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/regions/village/edit", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/regions/village/edit", nil,
		map[string]string{"Authorization": "Bearer garbage"}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/regions/village/edit", nil, bearer(t, "dave", false)).Code)
}

func TestRegions_EditFlow(t *testing.T) {
	env := newTestEnv(t)
	editor := bearer(t, "eve", true)

	events := make(chan string, 8)
	_, err := env.bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		events <- ev.EventType
	})
	require.NoError(t, err)

	// Правка без открытой сессии
	w := env.do(t, http.MethodPost, "/api/regions/village/edges/click", vec.Vec2Float{X: 50, Y: 0}, editor)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/regions/castle/edit", nil, editor).Code)

	var state compositor.EditState
	w = env.do(t, http.MethodPost, "/api/regions/village/edit", nil, editor)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &state)
	assert.Len(t, state.Vertices, 4)

	// Клик у нижнего ребра (z = 0, то есть lat = 0)
	decode(t, env.do(t, http.MethodPost, "/api/regions/village/edges/click", vec.Vec2Float{X: 50, Y: -0.5}, editor), &state)
	assert.Len(t, state.Vertices, 5)
	assert.Equal(t, "region.vertex_added", <-events)

	decode(t, env.do(t, http.MethodPost, "/api/regions/village/vertices/0/move", vec.Vec2Float{X: -10, Y: 10}, editor), &state)
	assert.Equal(t, 0, state.DragIndex)
	decode(t, env.do(t, http.MethodPost, "/api/regions/village/vertices/0/end", nil, editor), &state)
	assert.Equal(t, "region.vertex_moved", <-events)

	got, found := env.server.regions.Get("village")
	require.True(t, found)
	assert.Equal(t, vec.Vec2{X: -10, Y: -10}, got.Vertices[0])

	decode(t, env.do(t, http.MethodDelete, "/api/regions/village/vertices/1", nil, editor), &state)
	assert.Len(t, state.Vertices, 4)
	assert.Equal(t, "region.vertex_removed", <-events)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/regions/village/vertices/x", nil, editor).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/regions/village/edit", nil, editor).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/regions/village/vertices/0/end", nil, editor).Code)
}

func TestRegions_SecondEditorGetsConflict(t *testing.T) {
	env := newTestEnv(t)
	eve := bearer(t, "eve", true)
	mallory := bearer(t, "mallory", true)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/regions/village/edit", nil, eve).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/regions/village/edit", nil, mallory).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/regions/village/edges/click", vec.Vec2Float{X: 50, Y: -0.5}, mallory).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, "/api/regions/village/edit", nil, mallory).Code)

	// сессия eve жива
	var state compositor.EditState
	decode(t, env.do(t, http.MethodPost, "/api/regions/village/edges/click", vec.Vec2Float{X: 50, Y: -0.5}, eve), &state)
	assert.Len(t, state.Vertices, 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/regions/village/edit", nil, eve).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/regions/village/edit", nil, mallory).Code)
}

func TestTiles_ProxyAndBlank(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/tiles/overworld/2/0/0/1/2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tile-bytes", w.Body.String())

	// Выше нативного уровня тайлы растягивает клиент: соседние клетки
	// одного нативного тайла не получают его изображение целиком
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/tiles/overworld/3/0/0/2/4", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/tiles/overworld/4/4/1/44/12", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/tiles/overworld/4/4/1/47/15", nil, nil).Code)

	w = env.do(t, http.MethodGet, "/tiles/nether/2/0/0/1/2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/tiles/overworld/2/1/0/1/2", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/tiles/aether/2/0/0/1/2", nil, nil).Code)
}

func TestTiles_URL(t *testing.T) {
	env := newTestEnv(t)

	var out struct {
		URL    string      `json:"url"`
		Native tiles.Coord `json:"native"`
		Scale  int         `json:"scale"`
		Path   string      `json:"path"`
	}
	w := env.do(t, http.MethodGet, "/api/tiles/url?layer=minecraft:the_end&zoom=4&x=-1&y=8", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Equal(t, tiles.Coord{Zoom: 2, X: -1, Y: 2}, out.Native)
	assert.Equal(t, 4, out.Scale)
	assert.True(t, strings.HasSuffix(out.URL, "/the_end/2/-1/0/-1/2"), out.URL)
	assert.Equal(t, "the_end/4/-1/0/-1/8", out.Path)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/tiles/url?layer=overworld&zoom=9&x=0&y=0", nil, nil).Code)
}

func TestWebSocket_StreamsBusEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.server.hub.Start(ctx, env.bus))
	defer env.server.hub.Stop()

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.server.hub.Connected() == 1 }, time.Second, 10*time.Millisecond)

	ev, err := eventbus.NewEnvelope(eventbus.TypeMarkerRelocated, eventbus.MarkerRelocated{
		EntityID: "7",
		From:     vec.Vec3{X: 1},
		To:       vec.Vec3{X: 2},
	})
	require.NoError(t, err)
	require.NoError(t, env.bus.Publish(context.Background(), ev))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ev.ID, msg.ID)
	assert.Equal(t, eventbus.TypeMarkerRelocated, msg.Type)
	assert.Contains(t, string(msg.Payload), `"entity_id":"7"`)
}

func TestStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	decode(t, w, &stats)
	assert.Contains(t, stats, "server")
	assert.Contains(t, stats, "events")
	assert.Contains(t, stats, "regions")

	w = env.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "worldmap_api_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/render", nil)
	req.Header.Set("Origin", "https://map.example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", clientIDHeader)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
