// Package cluster решает, как группировать маркеры региона на данном масштабе.
package cluster

// IconFamily семейство значков кластера
type IconFamily uint8

const (
	// RegionBadge значок цвета региона с числом сущностей
	RegionBadge IconFamily = iota
	// NumericCluster обычный числовой значок кластера
	NumericCluster
)

func (f IconFamily) String() string {
	if f == RegionBadge {
		return "region_badge"
	}
	return "numeric_cluster"
}

// MarshalText сериализует семейство именем
func (f IconFamily) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Значения по умолчанию
const (
	DefaultCollapseZoom    = 0
	DefaultCollapsedRadius = 1e6
	DefaultExpandedRadius  = 40
)

// Policy пороговая политика кластеризации. Радиусы в пикселях экрана.
type Policy struct {
	CollapseZoom    int     `yaml:"collapse_zoom" json:"collapse_zoom"`
	CollapsedRadius float64 `yaml:"collapsed_radius" json:"collapsed_radius"`
	ExpandedRadius  float64 `yaml:"expanded_radius" json:"expanded_radius"`
}

// DefaultPolicy возвращает политику карты по умолчанию
func DefaultPolicy() Policy {
	return Policy{
		CollapseZoom:    DefaultCollapseZoom,
		CollapsedRadius: DefaultCollapsedRadius,
		ExpandedRadius:  DefaultExpandedRadius,
	}
}

// Collapsed сообщает, схлопываются ли регионы в один значок на масштабе zoom
func (p Policy) Collapsed(zoom int) bool {
	return zoom <= p.CollapseZoom
}

// Radius возвращает радиус кластеризации для масштаба
func (p Policy) Radius(zoom int) float64 {
	if p.Collapsed(zoom) {
		return p.CollapsedRadius
	}
	return p.ExpandedRadius
}

// Family возвращает семейство значков для масштаба
func (p Policy) Family(zoom int) IconFamily {
	if p.Collapsed(zoom) {
		return RegionBadge
	}
	return NumericCluster
}
