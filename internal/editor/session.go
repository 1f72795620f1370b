// Package editor реализует интерактивное редактирование полигона региона.
// Правка идёт в пространстве проекции, фиксируется в мировых координатах (x, z).
package editor

import (
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/projection"
	"github.com/annel0/worldmap/internal/vec"
)

// MinVertices меньше трёх вершин у полигона быть не может
const MinVertices = 3

// NoDrag индекс вершины, когда перетаскивания нет
const NoDrag = -1

// Session состояние правки одного полигона.
// Живой список вершин расходится с подтверждённым до очередного коммита.
type Session struct {
	RegionID  string
	Dimension dimension.Dimension
	Vertices  []vec.Vec2Float
	DragIndex int
}

// Dragging сообщает, перетаскивается ли вершина
func (s *Session) Dragging() bool {
	return s.DragIndex != NoDrag
}

// WorldVertices возвращает живые вершины в мировых координатах
func (s *Session) WorldVertices() []vec.Vec2 {
	return projection.PolygonToWorld(s.Vertices)
}

func (s *Session) valid(i int) bool {
	return i >= 0 && i < len(s.Vertices)
}

// EditKind вид подтверждённой правки
type EditKind uint8

const (
	VertexMoved EditKind = iota
	VertexAdded
	VertexRemoved
)

func (k EditKind) String() string {
	switch k {
	case VertexMoved:
		return "vertex_moved"
	case VertexAdded:
		return "vertex_added"
	case VertexRemoved:
		return "vertex_removed"
	}
	return "unknown"
}

// Target элемент полигона под курсором
type Target uint8

const (
	TargetMap Target = iota
	TargetVertex
	TargetEdge
)

// Propagation что делать карте с событием после обработчика
type Propagation uint8

const (
	Continue Propagation = iota
	Stop
)
