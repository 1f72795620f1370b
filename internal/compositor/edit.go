package compositor

import (
	"fmt"

	"github.com/annel0/worldmap/internal/editor"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/vec"
)

// EditState снимок сессии правки для клиента
type EditState struct {
	RegionID  string          `json:"region_id"`
	Vertices  []vec.Vec2Float `json:"vertices"`
	DragIndex int             `json:"drag_index"`
}

func (c *Compositor) editState() EditState {
	return EditState{
		RegionID:  c.session.RegionID,
		Vertices:  vec.CloneVec2Floats(c.session.Vertices),
		DragIndex: c.session.DragIndex,
	}
}

// BeginEdit открывает правку региона для редактора owner. Правка одна на карту:
// пока она открыта другим редактором, возвращается ErrEditInProgress.
// Своя прежняя сессия закрывается без коммита.
func (c *Compositor) BeginEdit(owner, regionID string) (EditState, error) {
	if c.session != nil && c.editOwner != owner {
		return EditState{}, fmt.Errorf("%w: %s edits %s", ErrEditInProgress, c.editOwner, c.session.RegionID)
	}
	r, ok := c.regions.Get(regionID)
	if !ok {
		return EditState{}, fmt.Errorf("%w: %s", region.ErrUnknownRegion, regionID)
	}
	c.session = c.editor.Begin(r.ID, r.Dimension, r.Vertices)
	c.editOwner = owner
	return c.editState(), nil
}

// EndEdit закрывает сессию правки owner. Чужую сессию закрыть нельзя.
func (c *Compositor) EndEdit(owner string) error {
	if c.session == nil {
		return nil
	}
	if c.editOwner != owner {
		return fmt.Errorf("%w: %s edits %s", ErrEditInProgress, c.editOwner, c.session.RegionID)
	}
	c.session = nil
	c.editOwner = ""
	return nil
}

// Editing возвращает снимок текущей сессии
func (c *Compositor) Editing() (EditState, bool) {
	if c.session == nil {
		return EditState{}, false
	}
	return c.editState(), true
}

func (c *Compositor) activeSession(owner, regionID string) (*editor.Session, error) {
	if c.session != nil && c.editOwner != owner {
		return nil, fmt.Errorf("%w: %s edits %s", ErrEditInProgress, c.editOwner, c.session.RegionID)
	}
	if c.session == nil || c.session.RegionID != regionID {
		return nil, fmt.Errorf("%w: %s", ErrNoEditSession, regionID)
	}
	return c.session, nil
}

// EditVertexMove двигает вершину без коммита
func (c *Compositor) EditVertexMove(owner, regionID string, i int, p vec.Vec2Float) (EditState, error) {
	s, err := c.activeSession(owner, regionID)
	if err != nil {
		return EditState{}, err
	}
	if s.DragIndex != i {
		c.editor.VertexDragStart(s, i)
	}
	c.editor.VertexDragMove(s, i, p)
	return c.editState(), nil
}

// EditVertexEnd завершает перетаскивание и фиксирует полигон
func (c *Compositor) EditVertexEnd(owner, regionID string) (EditState, error) {
	s, err := c.activeSession(owner, regionID)
	if err != nil {
		return EditState{}, err
	}
	c.editor.VertexDragEnd(s)
	return c.editState(), nil
}

// EditEdgeClick вставляет вершину у ближайшего ребра
func (c *Compositor) EditEdgeClick(owner, regionID string, p vec.Vec2Float) (EditState, error) {
	s, err := c.activeSession(owner, regionID)
	if err != nil {
		return EditState{}, err
	}
	c.editor.EdgeClick(s, p)
	return c.editState(), nil
}

// EditVertexRemove удаляет вершину; у треугольника ничего не происходит
func (c *Compositor) EditVertexRemove(owner, regionID string, i int) (EditState, error) {
	s, err := c.activeSession(owner, regionID)
	if err != nil {
		return EditState{}, err
	}
	c.editor.VertexRemove(s, i)
	return c.editState(), nil
}

// onPolygonCommit обновляет индекс регионов и публикует правку
func (c *Compositor) onPolygonCommit(regionID string, kind editor.EditKind, index int, vertices []vec.Vec2) {
	if err := c.regions.Replace(regionID, vertices); err != nil {
		c.log.Error("region %s edit not applied: %v", regionID, err)
		return
	}
	eventType := eventbus.TypeVertexMoved
	switch kind {
	case editor.VertexAdded:
		eventType = eventbus.TypeVertexAdded
	case editor.VertexRemoved:
		eventType = eventbus.TypeVertexRemoved
	}
	c.publish(eventType, eventbus.PolygonEdit{RegionID: regionID, Index: index, Vertices: vertices})
}
