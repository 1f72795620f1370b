package geometry

import (
	"math"

	"github.com/annel0/worldmap/internal/vec"
)

// BBox ограничивающий прямоугольник в целочисленной плоскости (x, z)
type BBox struct {
	MinX, MinZ int
	MaxX, MaxZ int
}

// Of строит прямоугольник по вершинам. Для пустого списка возвращает пустой BBox.
func Of(poly []vec.Vec2) BBox {
	if len(poly) == 0 {
		return BBox{MinX: math.MaxInt, MinZ: math.MaxInt, MaxX: math.MinInt, MaxZ: math.MinInt}
	}
	b := BBox{MinX: poly[0].X, MinZ: poly[0].Y, MaxX: poly[0].X, MaxZ: poly[0].Y}
	for _, v := range poly[1:] {
		b = b.Expand(v)
	}
	return b
}

// Empty сообщает, что прямоугольник не содержит ни одной точки
func (b BBox) Empty() bool {
	return b.MinX > b.MaxX || b.MinZ > b.MaxZ
}

// Expand расширяет прямоугольник до точки v
func (b BBox) Expand(v vec.Vec2) BBox {
	if v.X < b.MinX {
		b.MinX = v.X
	}
	if v.X > b.MaxX {
		b.MaxX = v.X
	}
	if v.Y < b.MinZ {
		b.MinZ = v.Y
	}
	if v.Y > b.MaxZ {
		b.MaxZ = v.Y
	}
	return b
}

// ContainsPoint проверяет попадание точки (границы включительно)
func (b BBox) ContainsPoint(v vec.Vec2) bool {
	return v.X >= b.MinX && v.X <= b.MaxX && v.Y >= b.MinZ && v.Y <= b.MaxZ
}
