// Package region хранит именованные полигональные регионы и группирует по ним сущности.
package region

import (
	"errors"
	"fmt"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/vec"
)

// MinVertices минимальное число вершин полигона
const MinVertices = 3

var (
	ErrUnknownRegion  = errors.New("unknown region")
	ErrTooFewVertices = errors.New("region needs at least 3 vertices")
)

// Region именованный цветной полигон в плоскости мира (x, z).
// Vec2.Y хранит координату z.
type Region struct {
	ID        string              `json:"id" yaml:"id"`
	Name      string              `json:"name" yaml:"name"`
	Color     string              `json:"color" yaml:"color"`
	Dimension dimension.Dimension `json:"dimension" yaml:"dimension"`
	Vertices  []vec.Vec2          `json:"vertices" yaml:"-"`
}

// Clone возвращает копию с независимым списком вершин
func (r Region) Clone() Region {
	r.Vertices = vec.CloneVec2s(r.Vertices)
	return r
}

// Validate проверяет регион перед добавлением в индекс
func (r Region) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("region without id")
	}
	if len(r.Vertices) < MinVertices {
		return fmt.Errorf("region %s: %w", r.ID, ErrTooFewVertices)
	}
	return nil
}
