package toggles

import (
	"context"
	"testing"

	"github.com/annel0/worldmap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_FieldByField(t *testing.T) {
	defaults := Set{
		{ID: "projects", Visible: true, LabelVisible: true},
		{ID: "players", Visible: true},
		{ID: "relics", Visible: true},
	}
	stored, err := Decode([]byte(`[{"id":"projects","visible":false}]`))
	require.NoError(t, err)

	merged := Merge(defaults, stored)
	require.Len(t, merged, 3)
	assert.Equal(t, Toggle{ID: "projects", Visible: false, LabelVisible: true}, merged[0])
	assert.Equal(t, defaults[1], merged[1])
	assert.Equal(t, defaults[2], merged[2])
}

func TestMerge_DropsUnknownAndKeepsOrder(t *testing.T) {
	stored, err := Decode([]byte(`[{"id":"castles","visible":true},{"id":"the_end","label_visible":true},{"id":"overworld","visible":false}]`))
	require.NoError(t, err)

	merged := Merge(DefaultLayers(), stored)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"overworld", "nether", "the_end"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
	assert.False(t, merged[0].Visible)
	assert.True(t, merged[2].Visible)
	assert.True(t, merged[2].LabelVisible)
	_, ok := merged.Get("castles")
	assert.False(t, ok)
}

func TestSetQueries(t *testing.T) {
	s := Set{{ID: "shops", Visible: false, LabelVisible: true}, {ID: "farms", Visible: true, LabelVisible: true}}
	assert.False(t, s.Visible("shops"))
	assert.False(t, s.LabelVisible("shops"), "скрытая категория без подписи")
	assert.True(t, s.LabelVisible("farms"))
	assert.False(t, s.Visible("unknown"))
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryToggleRepo()
	store := NewStore(repo)

	state, err := store.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, DefaultPoints(), state.Points)
	assert.Equal(t, DefaultLayers(), state.Layers)

	off := false
	updated, err := store.Update(ctx, "c1", KeyPoints, []Stored{{ID: "players", Visible: &off}})
	require.NoError(t, err)
	assert.False(t, updated.Visible("players"))

	reloaded, err := store.Load(ctx, "c1", KeyPoints)
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)

	require.NoError(t, store.Reset(ctx, "c1", KeyPoints))
	reloaded, err = store.Load(ctx, "c1", KeyPoints)
	require.NoError(t, err)
	assert.True(t, reloaded.Visible("players"))

	_, err = store.Load(ctx, "c1", "weather")
	assert.Error(t, err)
}

func TestStore_CorruptBlobFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryToggleRepo()
	require.NoError(t, repo.Save(ctx, "c1", KeyLayers, []byte("{not json")))

	set, err := NewStore(repo).Load(ctx, "c1", KeyLayers)
	require.NoError(t, err)
	assert.Equal(t, DefaultLayers(), set)
}
