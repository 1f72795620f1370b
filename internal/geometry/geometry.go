// Package geometry содержит планарную геометрию полигонов в проекционном пространстве.
// Проекция карты линейная, поэтому пространство (lng, lat) считается евклидовым.
package geometry

import (
	"math"

	"github.com/annel0/worldmap/internal/vec"
)

// BoundaryEpsilon расстояние до границы, на котором точка считается лежащей на ней
const BoundaryEpsilon = 1e-9

// DistanceToSegment возвращает расстояние от p до отрезка [a, b].
// Проекция p на прямую ограничивается параметром t ∈ [0, 1].
func DistanceToSegment(p, a, b vec.Vec2Float) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return p.DistanceTo(a)
	}
	t := p.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.DistanceTo(a.Add(ab.Mul(t)))
}

// ClosestEdgeIndex возвращает индекс i ребра (poly[i], poly[(i+1) mod n]), ближайшего к p.
// При равенстве расстояний побеждает первое ребро. Для пустого полигона -1,
// для полигона из одной точки 0.
func ClosestEdgeIndex(p vec.Vec2Float, poly []vec.Vec2Float) int {
	n := len(poly)
	switch n {
	case 0:
		return -1
	case 1:
		return 0
	}

	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < n; i++ {
		d := DistanceToSegment(p, poly[i], poly[(i+1)%n])
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// DistanceToPolygon возвращает минимальное расстояние от p до рёбер полигона.
// Для пустого полигона +Inf.
func DistanceToPolygon(p vec.Vec2Float, poly []vec.Vec2Float) float64 {
	switch len(poly) {
	case 0:
		return math.Inf(1)
	case 1:
		return p.DistanceTo(poly[0])
	}
	best := math.Inf(1)
	for i := range poly {
		best = math.Min(best, DistanceToSegment(p, poly[i], poly[(i+1)%len(poly)]))
	}
	return best
}

// Contains проверяет попадание точки в полигон по правилу чётности (ray casting).
// Точка на границе считается внутренней.
func Contains(p vec.Vec2Float, poly []vec.Vec2Float) bool {
	if len(poly) < 3 {
		return false
	}
	if DistanceToPolygon(p, poly) <= BoundaryEpsilon {
		return true
	}

	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Midpoint возвращает середину отрезка [a, b]
func Midpoint(a, b vec.Vec2Float) vec.Vec2Float {
	return vec.Vec2Float{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// ToFloat переводит вершины мировой плоскости (x, z) в плоские точки без проекции
func ToFloat(poly []vec.Vec2) []vec.Vec2Float {
	out := make([]vec.Vec2Float, len(poly))
	for i, v := range poly {
		out[i] = vec.FromVec2(v)
	}
	return out
}
