package eventbus

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/annel0/worldmap/internal/vec"
	"github.com/google/uuid"
)

// ErrBusClosed возвращается при публикации в закрытую шину
var ErrBusClosed = errors.New("event bus closed")

// SourceMap источник событий движка карты
const SourceMap = "worldmap"

// Типы событий карты
const (
	TypeVertexAdded     = "region.vertex_added"
	TypeVertexMoved     = "region.vertex_moved"
	TypeVertexRemoved   = "region.vertex_removed"
	TypeMarkerRelocated = "marker.relocated"
	TypeRelocateFailed  = "marker.relocate_failed"
)

// PolygonEdit подтверждённая правка полигона региона
type PolygonEdit struct {
	RegionID string     `json:"region_id"`
	Index    int        `json:"index"`
	Vertices []vec.Vec2 `json:"vertices"`
}

// MarkerRelocated проект перенесён и бэкенд подтвердил координаты
type MarkerRelocated struct {
	EntityID string   `json:"entity_id"`
	From     vec.Vec3 `json:"from"`
	To       vec.Vec3 `json:"to"`
}

// RelocateFailed патч координат отклонён, маркер возвращён на место
type RelocateFailed struct {
	EntityID   string   `json:"entity_id"`
	Attempted  vec.Vec3 `json:"attempted"`
	RestoredTo vec.Vec3 `json:"restored_to"`
	Error      string   `json:"error"`
}

// NewEnvelope упаковывает полезную нагрузку в конверт
func NewEnvelope(eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ev := &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    SourceMap,
		EventType: eventType,
		Version:   1,
		Payload:   data,
	}
	if eventType == TypeRelocateFailed {
		ev.Priority = 5
	}
	return ev, nil
}

// Decode разбирает полезную нагрузку конверта
func Decode[T any](ev *Envelope) (T, error) {
	var out T
	err := json.Unmarshal(ev.Payload, &out)
	return out, err
}
