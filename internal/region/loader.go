package region

import (
	"fmt"
	"os"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/vec"
	"gopkg.in/yaml.v3"
)

// fileRegion запись региона в YAML-файле. Вершины задаются парами [x, z].
type fileRegion struct {
	ID        string              `yaml:"id"`
	Name      string              `yaml:"name"`
	Color     string              `yaml:"color"`
	Dimension dimension.Dimension `yaml:"dimension"`
	Vertices  [][2]int            `yaml:"vertices"`
}

type regionsFile struct {
	Regions []fileRegion `yaml:"regions"`
}

// Parse разбирает YAML со списком регионов
func Parse(data []byte) ([]Region, error) {
	var f regionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse regions: %w", err)
	}
	out := make([]Region, 0, len(f.Regions))
	for _, fr := range f.Regions {
		r := Region{
			ID:        fr.ID,
			Name:      fr.Name,
			Color:     fr.Color,
			Dimension: fr.Dimension,
			Vertices:  make([]vec.Vec2, len(fr.Vertices)),
		}
		if r.Dimension == dimension.Unknown {
			r.Dimension = dimension.Overworld
		}
		for i, v := range fr.Vertices {
			r.Vertices[i] = vec.Vec2{X: v[0], Y: v[1]}
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadFile читает регионы из YAML-файла
func LoadFile(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}
	return Parse(data)
}
