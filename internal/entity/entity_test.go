package entity

import (
	"testing"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	pos := vec.Vec3{X: 1, Y: 2, Z: 3}
	assert.Equal(t, CategoryShops, NewPin("1", "a", pos, dimension.Overworld, PinShop).Category())
	assert.Equal(t, CategoryFarms, NewPin("1", "a", pos, dimension.Overworld, PinFarm).Category())
	assert.Equal(t, CategoryRelics, NewPin("1", "a", pos, dimension.Overworld, PinRelic).Category())
	assert.Equal(t, CategoryProjects, NewProject("1", "a", pos, dimension.Nether, StatusAbandoned).Category())
	assert.Equal(t, CategoryPlayers, NewPlayer("1", "a", pos, dimension.TheEnd, true).Category())
}

func TestKeyDistinguishesKinds(t *testing.T) {
	pin := NewPin("7", "a", vec.Vec3{}, dimension.Overworld, PinShop)
	project := NewProject("7", "a", vec.Vec3{}, dimension.Overworld, StatusOngoing)
	assert.NotEqual(t, pin.Key(), project.Key())
	assert.True(t, project.Draggable())
	assert.False(t, pin.Draggable())
}

func TestParse(t *testing.T) {
	pt, err := ParsePinType(" Farm ")
	require.NoError(t, err)
	assert.Equal(t, PinFarm, pt)

	st, err := ParseProjectStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)

	_, err = ParsePinType("castle")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := NewProject("1", "a", vec.Vec3{}, dimension.Overworld, StatusOngoing)
	assert.NoError(t, ok.Validate())

	noDim := ok
	noDim.Dimension = dimension.Unknown
	assert.Error(t, noDim.Validate())

	noID := ok
	noID.ID = ""
	assert.Error(t, noID.Validate())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Project ")
	require.NoError(t, err)
	assert.Equal(t, KindProject, k)

	_, err = ParseKind("region")
	assert.Error(t, err)
}
