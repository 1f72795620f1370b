package editor

import (
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/geometry"
	"github.com/annel0/worldmap/internal/projection"
	"github.com/annel0/worldmap/internal/vec"
)

// PreviewFunc получает живые вершины во время перетаскивания
type PreviewFunc func(regionID string, vertices []vec.Vec2Float)

// UpdateFunc получает подтверждённые вершины региона в мировых координатах
type UpdateFunc func(regionID string, kind EditKind, index int, vertices []vec.Vec2)

// Controller обрабатывает события правки. Сессию хранит вызывающий.
type Controller struct {
	OnPreview PreviewFunc
	OnUpdate  UpdateFunc
}

// Begin открывает сессию правки региона
func (c *Controller) Begin(regionID string, dim dimension.Dimension, vertices []vec.Vec2) *Session {
	return &Session{
		RegionID:  regionID,
		Dimension: dim,
		Vertices:  projection.PolygonToProjected(vertices, dim, dim),
		DragIndex: NoDrag,
	}
}

// VertexDragStart переводит сессию в перетаскивание вершины i
func (c *Controller) VertexDragStart(s *Session, i int) bool {
	if !s.valid(i) {
		return false
	}
	s.DragIndex = i
	return true
}

// VertexDragMove заменяет вершину i и показывает превью без коммита
func (c *Controller) VertexDragMove(s *Session, i int, p vec.Vec2Float) bool {
	if !s.valid(i) {
		return false
	}
	s.DragIndex = i
	s.Vertices[i] = p
	if c.OnPreview != nil {
		c.OnPreview(s.RegionID, vec.CloneVec2Floats(s.Vertices))
	}
	return true
}

// VertexDragEnd завершает перетаскивание и фиксирует вершины.
// Без активного перетаскивания ничего не делает.
func (c *Controller) VertexDragEnd(s *Session) bool {
	if !s.Dragging() {
		return false
	}
	i := s.DragIndex
	s.DragIndex = NoDrag
	c.commit(s, VertexMoved, i)
	return true
}

// EdgeClick вставляет точку сразу после ближайшего ребра и фиксирует вершины.
// Возвращает позицию новой вершины.
func (c *Controller) EdgeClick(s *Session, p vec.Vec2Float) int {
	at := geometry.ClosestEdgeIndex(p, s.Vertices) + 1
	s.Vertices = append(s.Vertices, vec.Vec2Float{})
	copy(s.Vertices[at+1:], s.Vertices[at:])
	s.Vertices[at] = p
	if s.DragIndex >= at {
		s.DragIndex++
	}
	c.commit(s, VertexAdded, at)
	return at
}

// VertexRemove удаляет вершину i. Полигон из трёх вершин не меняется.
func (c *Controller) VertexRemove(s *Session, i int) bool {
	if len(s.Vertices) <= MinVertices || !s.valid(i) {
		return false
	}
	s.Vertices = append(s.Vertices[:i], s.Vertices[i+1:]...)
	switch {
	case s.DragIndex == i:
		s.DragIndex = NoDrag
	case s.DragIndex > i:
		s.DragIndex--
	}
	c.commit(s, VertexRemoved, i)
	return true
}

// DoubleClick не пускает двойной клик по вершине или ребру дальше, иначе карта
// примет его за зум
func (c *Controller) DoubleClick(target Target) Propagation {
	if target == TargetVertex || target == TargetEdge {
		return Stop
	}
	return Continue
}

func (c *Controller) commit(s *Session, kind EditKind, index int) {
	if c.OnUpdate != nil {
		c.OnUpdate(s.RegionID, kind, index, s.WorldVertices())
	}
}
