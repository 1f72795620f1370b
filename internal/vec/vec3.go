package vec

// Vec3 представляет блочную координату мира Minecraft (x, y, z).
// Y вертикаль, в 2D проекции не участвует.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// XZ возвращает горизонтальную проекцию точки
func (v Vec3) XZ() Vec2 {
	return Vec2{X: v.X, Y: v.Z}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Array возвращает координаты в формате [x, y, z] для wire-протокола бэкенда
func (v Vec3) Array() [3]int {
	return [3]int{v.X, v.Y, v.Z}
}

// FromArray создает Vec3 из массива [x, y, z]
func FromArray(a [3]int) Vec3 {
	return Vec3{X: a[0], Y: a[1], Z: a[2]}
}
