package compositor

import (
	"strconv"
	"strings"

	"github.com/annel0/worldmap/internal/cluster"
	"github.com/annel0/worldmap/internal/entity"
)

// Icon метаданные значка для фронтенда
type Icon struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Size      [2]int `json:"size"`
	Anchor    [2]int `json:"anchor"`
	ClassName string `json:"class_name,omitempty"`
	Text      string `json:"text,omitempty"`
	Color     string `json:"color,omitempty"`
}

// IconSet значки маркеров. Создаётся вместе с компоновщиком и живёт столько же.
type IconSet struct {
	pins     map[entity.PinType]Icon
	projects map[entity.ProjectStatus]Icon
	player   Icon
}

// NewIconSet строит значки с адресами относительно baseURL
func NewIconSet(baseURL string) *IconSet {
	base := strings.TrimRight(baseURL, "/")
	marker := func(name string) Icon {
		return Icon{
			Name:   name,
			URL:    base + "/" + name + ".png",
			Size:   [2]int{32, 32},
			Anchor: [2]int{16, 32},
		}
	}
	player := marker("player")
	player.Size, player.Anchor = [2]int{24, 24}, [2]int{12, 12}

	return &IconSet{
		pins: map[entity.PinType]Icon{
			entity.PinShop:  marker("shop"),
			entity.PinFarm:  marker("farm"),
			entity.PinRelic: marker("relic"),
		},
		projects: map[entity.ProjectStatus]Icon{
			entity.StatusOngoing:   marker("project-ongoing"),
			entity.StatusCompleted: marker("project-completed"),
			entity.StatusAbandoned: marker("project-abandoned"),
		},
		player: player,
	}
}

// For возвращает значок сущности; false для неизвестного варианта
func (s *IconSet) For(e entity.Entity) (Icon, bool) {
	switch e.Kind {
	case entity.KindPin:
		icon, ok := s.pins[e.PinType]
		return icon, ok
	case entity.KindProject:
		icon, ok := s.projects[e.Status]
		return icon, ok
	case entity.KindPlayer:
		return s.player, true
	}
	return Icon{}, false
}

// Cluster возвращает значок группы: цветной значок региона или числовой кластер
func (s *IconSet) Cluster(family cluster.IconFamily, color string, count int) Icon {
	text := strconv.Itoa(count)
	if family == cluster.RegionBadge {
		return Icon{
			Name:      "region-badge",
			Size:      [2]int{40, 40},
			Anchor:    [2]int{20, 20},
			ClassName: "region-badge",
			Text:      text,
			Color:     color,
		}
	}

	size := 30
	class := "cluster-small"
	switch {
	case count >= 100:
		size, class = 44, "cluster-large"
	case count >= 10:
		size, class = 36, "cluster-medium"
	}
	return Icon{
		Name:      "cluster",
		Size:      [2]int{size, size},
		Anchor:    [2]int{size / 2, size / 2},
		ClassName: class,
		Text:      text,
	}
}
