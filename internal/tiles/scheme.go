package tiles

import (
	"fmt"
	"strings"
)

// BucketSize число тайлов в одном каталоге по каждой оси.
// Нужна только чтобы ограничить размер каталогов на бэкенде тайлов,
// но формат пути обязан совпадать бит в бит, иначе CDN промахивается.
const BucketSize = 10

// ZoomBounds описывает допустимые уровни масштаба источника тайлов
type ZoomBounds struct {
	MinZoom       int `yaml:"min_zoom" json:"min_zoom"`
	MaxZoom       int `yaml:"max_zoom" json:"max_zoom"`
	MaxNativeZoom int `yaml:"max_native_zoom" json:"max_native_zoom"`
}

// DefaultZoomBounds возвращает границы рендера карты: -5..6, нативный 2
func DefaultZoomBounds() ZoomBounds {
	return ZoomBounds{MinZoom: -5, MaxZoom: 6, MaxNativeZoom: 2}
}

// Coord адрес тайла в сетке (zoom, x, y)
type Coord struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// Bucket возвращает floor(n / BucketSize) с корректным округлением вниз для отрицательных n
func Bucket(n int) int {
	q := n / BucketSize
	if n%BucketSize != 0 && n < 0 {
		q--
	}
	return q
}

// Path возвращает путь тайла без базового URL: {layer}/{zoom}/{xBucket}/{yBucket}/{x}/{y}
func Path(layer string, zoom, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d/%d/%d", layer, zoom, Bucket(x), Bucket(y), x, y)
}

// URL возвращает полный адрес тайла: {base}/{layer}/{zoom}/{xBucket}/{yBucket}/{x}/{y}
func URL(base, layer string, zoom, x, y int) string {
	return strings.TrimRight(base, "/") + "/" + Path(layer, zoom, x, y)
}

// Scheme привязывает адресацию тайлов к базовому URL и границам масштаба
type Scheme struct {
	Base   string
	Bounds ZoomBounds
}

// NewScheme создаёт схему адресации
func NewScheme(base string, bounds ZoomBounds) *Scheme {
	return &Scheme{Base: base, Bounds: bounds}
}

// URL возвращает адрес тайла для слоя
func (s *Scheme) URL(layer string, c Coord) string {
	return URL(s.Base, layer, c.Zoom, c.X, c.Y)
}

// Clamp приводит уровень масштаба к допустимому диапазону
func (b ZoomBounds) Clamp(zoom int) int {
	if zoom < b.MinZoom {
		return b.MinZoom
	}
	if zoom > b.MaxZoom {
		return b.MaxZoom
	}
	return zoom
}

// Valid сообщает, входит ли уровень масштаба в диапазон карты
func (b ZoomBounds) Valid(zoom int) bool {
	return zoom >= b.MinZoom && zoom <= b.MaxZoom
}

// NativeTile возвращает тайл, который действительно запрашивается у источника.
// Выше MaxNativeZoom слой рендера растягивает нативный тайл, поэтому адрес
// сдвигается вправо на разницу уровней. На остальных уровнях адрес не меняется.
func (b ZoomBounds) NativeTile(c Coord) (Coord, bool) {
	if !b.Valid(c.Zoom) {
		return Coord{}, false
	}
	if c.Zoom <= b.MaxNativeZoom {
		return c, true
	}
	shift := uint(c.Zoom - b.MaxNativeZoom)
	return Coord{Zoom: b.MaxNativeZoom, X: c.X >> shift, Y: c.Y >> shift}, true
}
