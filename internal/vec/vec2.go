package vec

import "math"

// Vec2 представляет вершину полигона в мировых координатах (x, z).
// Поле Y хранит мировую координату Z.
type Vec2 struct {
	X int `json:"x"`
	Y int `json:"z"`
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// CloneVec2s возвращает независимую копию списка вершин
func CloneVec2s(src []Vec2) []Vec2 {
	if src == nil {
		return nil
	}
	out := make([]Vec2, len(src))
	copy(out, src)
	return out
}
