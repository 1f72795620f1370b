package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/vec"
)

// flexibleID принимает id как строкой, так и числом
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

// wireEntity сущность в формате REST-бэкенда
type wireEntity struct {
	ID          flexibleID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Coordinates []float64  `json:"coordinates"`
	Dimension   string     `json:"dimension"`
	Type        string     `json:"type,omitempty"`
	Status      string     `json:"status,omitempty"`
	Hidden      bool       `json:"hidden,omitempty"`
}

// patchBody тело PATCH /projects/{id}
type patchBody struct {
	Coordinates [3]int `json:"coordinates"`
}

func (w wireEntity) toEntity(kind entity.Kind) (entity.Entity, error) {
	if w.ID == "" {
		return entity.Entity{}, fmt.Errorf("missing id")
	}
	if len(w.Coordinates) != 3 {
		return entity.Entity{}, fmt.Errorf("entity %s: expected 3 coordinates, got %d", w.ID, len(w.Coordinates))
	}
	pos := vec.Vec3{
		X: int(math.Round(w.Coordinates[0])),
		Y: int(math.Round(w.Coordinates[1])),
		Z: int(math.Round(w.Coordinates[2])),
	}
	dim := dimension.Parse(w.Dimension)

	var e entity.Entity
	switch kind {
	case entity.KindPin:
		t, err := entity.ParsePinType(w.Type)
		if err != nil {
			return entity.Entity{}, fmt.Errorf("pin %s: %w", w.ID, err)
		}
		e = entity.NewPin(string(w.ID), w.Name, pos, dim, t)
	case entity.KindProject:
		st, err := entity.ParseProjectStatus(w.Status)
		if err != nil {
			return entity.Entity{}, fmt.Errorf("project %s: %w", w.ID, err)
		}
		e = entity.NewProject(string(w.ID), w.Name, pos, dim, st)
	case entity.KindPlayer:
		e = entity.NewPlayer(string(w.ID), w.Name, pos, dim, w.Hidden)
	default:
		return entity.Entity{}, fmt.Errorf("unsupported kind %s", kind)
	}
	e.Description = w.Description
	return e, e.Validate()
}

func toWire(e entity.Entity) wireEntity {
	w := wireEntity{
		ID:          flexibleID(e.ID),
		Name:        e.Name,
		Description: e.Description,
		Coordinates: []float64{float64(e.Position.X), float64(e.Position.Y), float64(e.Position.Z)},
		Dimension:   e.Dimension.Namespaced(),
	}
	switch e.Kind {
	case entity.KindPin:
		w.Type = e.PinType.String()
	case entity.KindProject:
		w.Status = e.Status.String()
	case entity.KindPlayer:
		w.Hidden = e.Hidden
	}
	return w
}

// decodeList разбирает список сущностей. Сущность с ошибкой пропускается,
// список целиком не отклоняется.
func decodeList(kind entity.Kind, body []byte) ([]entity.Entity, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", kind, err)
	}
	out := make([]entity.Entity, 0, len(raw))
	for i, item := range raw {
		var w wireEntity
		if err := json.Unmarshal(item, &w); err != nil {
			logging.Warn("skip %s #%d: %v", kind, i, err)
			continue
		}
		e, err := w.toEntity(kind)
		if err != nil {
			logging.Warn("skip %s #%d: %v", kind, i, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func encodeList(list []entity.Entity) ([]byte, error) {
	wire := make([]wireEntity, len(list))
	for i, e := range list {
		wire[i] = toWire(e)
	}
	return json.Marshal(wire)
}

// decodePatched разбирает ответ на успешный патч. Пустое тело (204) даёт
// проект с отправленными координатами без ошибки. Неполное тело даёт проект
// с id и координатами, которые удалось прочитать, и ошибку разбора.
func decodePatched(id string, sent vec.Vec3, body []byte) (entity.Entity, error) {
	partial := entity.Entity{Kind: entity.KindProject, ID: id, Position: sent}
	if len(bytes.TrimSpace(body)) == 0 {
		return partial, nil
	}
	var w wireEntity
	if err := json.Unmarshal(body, &w); err != nil {
		return partial, fmt.Errorf("failed to decode project: %w", err)
	}
	if w.ID != "" && string(w.ID) != id {
		return partial, fmt.Errorf("response for project %s, expected %s", w.ID, id)
	}
	if len(w.Coordinates) == 3 {
		partial.Position = vec.Vec3{
			X: int(math.Round(w.Coordinates[0])),
			Y: int(math.Round(w.Coordinates[1])),
			Z: int(math.Round(w.Coordinates[2])),
		}
	}
	w.ID = flexibleID(id)
	full, err := w.toEntity(entity.KindProject)
	if err != nil {
		return partial, err
	}
	return full, nil
}
