// Package projection переводит координаты мира Minecraft в плоское пространство
// проекции карты и обратно. Это единственное место, где применяется
// межмерный коэффициент 8; остальной код не должен масштабировать координаты сам.
package projection

import (
	"math"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/vec"
)

// NetherRatio отношение масштаба Верхнего мира к Незеру
const NetherRatio = 8.0

// ScaleFactor возвращает множитель для сущности измерения entityDim,
// показываемой на слое viewDim. Зависит только от пары измерений.
func ScaleFactor(entityDim, viewDim dimension.Dimension) float64 {
	if !entityDim.Known() || !viewDim.Known() {
		return 1
	}
	switch {
	case entityDim == dimension.Nether && viewDim != dimension.Nether:
		return NetherRatio
	case entityDim != dimension.Nether && viewDim == dimension.Nether:
		return 1 / NetherRatio
	default:
		return 1
	}
}

// ToProjected переводит мировую точку в координаты проекции: lat = -z, lng = x,
// затем применяет ScaleFactor.
func ToProjected(p vec.Vec3, entityDim, viewDim dimension.Dimension) vec.Vec2Float {
	k := ScaleFactor(entityDim, viewDim)
	return vec.Vec2Float{X: float64(p.X) * k, Y: -float64(p.Z) * k}
}

// ToWorld обратное преобразование без масштаба. Перетаскивание происходит
// только внутри своего измерения, поэтому коэффициент здесь не нужен.
// Y берётся у исходной сущности.
func ToWorld(p vec.Vec2Float, y int) vec.Vec3 {
	return vec.Vec3{
		X: int(math.Round(p.X)),
		Y: y,
		Z: int(math.Round(-p.Y)),
	}
}

// FromProjected обратное преобразование с учётом масштаба пары измерений.
// Результат округляется вниз, как координаты блока.
func FromProjected(p vec.Vec2Float, entityDim, viewDim dimension.Dimension, y int) vec.Vec3 {
	k := ScaleFactor(entityDim, viewDim)
	return vec.Vec3{
		X: int(math.Floor(p.X / k)),
		Y: y,
		Z: int(math.Floor(-p.Y / k)),
	}
}

// VertexToProjected переводит вершину региона (x, z) в проекцию
func VertexToProjected(v vec.Vec2, regionDim, viewDim dimension.Dimension) vec.Vec2Float {
	return ToProjected(vec.Vec3{X: v.X, Z: v.Y}, regionDim, viewDim)
}

// VertexToWorld переводит точку проекции обратно в вершину региона (x, z).
// Редактирование полигонов идёт только в родном измерении региона.
func VertexToWorld(p vec.Vec2Float) vec.Vec2 {
	return ToWorld(p, 0).XZ()
}

// PolygonToProjected переводит весь список вершин
func PolygonToProjected(vertices []vec.Vec2, regionDim, viewDim dimension.Dimension) []vec.Vec2Float {
	out := make([]vec.Vec2Float, len(vertices))
	for i, v := range vertices {
		out[i] = VertexToProjected(v, regionDim, viewDim)
	}
	return out
}

// PolygonToWorld переводит список точек проекции в вершины мира
func PolygonToWorld(points []vec.Vec2Float) []vec.Vec2 {
	out := make([]vec.Vec2, len(points))
	for i, p := range points {
		out[i] = VertexToWorld(p)
	}
	return out
}
