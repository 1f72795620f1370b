// Package toggles описывает переключатели видимости категорий и слоёв карты
// и их слияние с набором по умолчанию.
package toggles

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
)

// Ключи сохранённого состояния клиента
const (
	KeyPoints = "points"
	KeyLayers = "layers"
)

// Keys возвращает оба ключа
func Keys() []string {
	return []string{KeyPoints, KeyLayers}
}

// Toggle управляет видимостью категории и её постоянной подписи
type Toggle struct {
	ID           string `json:"id"`
	Visible      bool   `json:"visible"`
	LabelVisible bool   `json:"label_visible"`
}

// Stored запись в сохранённом блобе. Отсутствующие поля берутся из значения по умолчанию.
type Stored struct {
	ID           string `json:"id"`
	Visible      *bool  `json:"visible,omitempty"`
	LabelVisible *bool  `json:"label_visible,omitempty"`
}

// Set упорядоченный набор переключателей
type Set []Toggle

// Get возвращает переключатель по id
func (s Set) Get(id string) (Toggle, bool) {
	for _, t := range s {
		if t.ID == id {
			return t, true
		}
	}
	return Toggle{}, false
}

// Visible сообщает, видима ли категория. Неизвестная категория не видна.
func (s Set) Visible(id string) bool {
	t, ok := s.Get(id)
	return ok && t.Visible
}

// LabelVisible сообщает, показывается ли подпись категории
func (s Set) LabelVisible(id string) bool {
	t, ok := s.Get(id)
	return ok && t.Visible && t.LabelVisible
}

// Clone возвращает копию набора
func (s Set) Clone() Set {
	return append(Set(nil), s...)
}

// DefaultPoints переключатели категорий точек
func DefaultPoints() Set {
	return Set{
		{ID: entity.CategoryShops, Visible: true},
		{ID: entity.CategoryFarms, Visible: true},
		{ID: entity.CategoryRelics, Visible: true},
		{ID: entity.CategoryProjects, Visible: true},
		{ID: entity.CategoryPlayers, Visible: true},
		{ID: entity.CategoryRegions, Visible: true, LabelVisible: true},
	}
}

// DefaultLayers переключатели слоёв измерений
func DefaultLayers() Set {
	out := make(Set, 0, 3)
	for _, d := range dimension.All() {
		out = append(out, Toggle{ID: d.String(), Visible: true})
	}
	return out
}

// Defaults возвращает набор по умолчанию для ключа
func Defaults(key string) (Set, error) {
	switch key {
	case KeyPoints:
		return DefaultPoints(), nil
	case KeyLayers:
		return DefaultLayers(), nil
	}
	return nil, fmt.Errorf("unknown toggle key %q", key)
}

// Merge сливает сохранённое состояние с набором по умолчанию поле за полем.
// В результате ровно те id, что есть в defaults, в их порядке; заданные поля
// сохранённой записи перекрывают значения по умолчанию; неизвестные id отбрасываются.
func Merge(defaults Set, stored []Stored) Set {
	byID := make(map[string]Stored, len(stored))
	for _, s := range stored {
		if _, dup := byID[s.ID]; !dup {
			byID[s.ID] = s
		}
	}

	out := defaults.Clone()
	for i, t := range out {
		s, ok := byID[t.ID]
		if !ok {
			continue
		}
		if s.Visible != nil {
			out[i].Visible = *s.Visible
		}
		if s.LabelVisible != nil {
			out[i].LabelVisible = *s.LabelVisible
		}
	}
	return out
}

// Decode разбирает сохранённый блоб
func Decode(blob []byte) ([]Stored, error) {
	var stored []Stored
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("invalid toggle blob: %w", err)
	}
	return stored, nil
}

// Encode сериализует набор для хранения
func Encode(s Set) ([]byte, error) {
	return json.Marshal(s)
}
