package compositor

import (
	"context"
	"fmt"

	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/projection"
	"github.com/annel0/worldmap/internal/vec"
)

// pendingPatch один незавершённый перенос сущности
type pendingPatch struct {
	ticket uint64
	to     vec.Vec3
	cancel context.CancelFunc
}

// PatchRequest запрос на патч координат, порождённый отпусканием маркера
type PatchRequest struct {
	Ticket   uint64   `json:"ticket"`
	EntityID string   `json:"entity_id"`
	From     vec.Vec3 `json:"from"`
	To       vec.Vec3 `json:"to"`

	ctx context.Context
}

// Context отменяется, если сущность ушла с карты до ответа бэкенда
func (r PatchRequest) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Settlement итог завершившегося переноса
type Settlement struct {
	Ticket    uint64   `json:"ticket"`
	EntityID  string   `json:"entity_id"`
	Attempted vec.Vec3 `json:"attempted"`
	Position  vec.Vec3 `json:"position"`
	Confirmed bool     `json:"confirmed"`
	Stale     bool     `json:"stale"`
}

func projectKey(id string) string {
	return entity.Entity{Kind: entity.KindProject, ID: id}.Key()
}

// draggable находит проект, который можно начать переносить
func (c *Compositor) draggable(kind entity.Kind, id string) (*tracked, error) {
	key := entity.Entity{Kind: kind, ID: id}.Key()
	t, ok := c.entities[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	if !t.entity.Draggable() {
		return nil, fmt.Errorf("%w: %s", ErrNotDraggable, key)
	}
	if _, inFlight := c.pending[key]; inFlight {
		return nil, fmt.Errorf("%w: %s", ErrPatchInFlight, key)
	}
	return t, nil
}

// BeginDrag проверяет, что сущность можно переносить. Пока предыдущий патч
// не завершился, новый перенос той же сущности запрещён.
func (c *Compositor) BeginDrag(kind entity.Kind, id string) error {
	_, err := c.draggable(kind, id)
	return err
}

// Drop обрабатывает отпускание маркера проекта в точке проекции p.
// Координаты округляются, y сохраняется, маркер сразу показывается на новом месте.
// Возвращённый запрос нужно отправить бэкенду и завершить через Settle.
func (c *Compositor) Drop(parent context.Context, id string, p vec.Vec2Float) (PatchRequest, error) {
	t, err := c.draggable(entity.KindProject, id)
	if err != nil {
		return PatchRequest{}, err
	}

	to := projection.ToWorld(p, t.confirmed.Y)
	ctx, cancel := context.WithCancel(parent)
	c.nextTicket++
	req := PatchRequest{
		Ticket:   c.nextTicket,
		EntityID: id,
		From:     t.confirmed,
		To:       to,
		ctx:      ctx,
	}

	c.pending[t.entity.Key()] = &pendingPatch{ticket: req.Ticket, to: to, cancel: cancel}
	t.entity.Position = to
	logging.LogMarkerDrag(id, req.From.X, req.From.Z, to.X, to.Z)
	return req, nil
}

// Settle завершает перенос. При успехе позиция подтверждается (updated, если
// бэкенд вернул сущность; от неполной сущности берётся только позиция).
// При ошибке маркер возвращается на последнюю подтверждённую позицию и
// возвращается ErrPatchRejected с причиной.
// Результат для отменённого или неизвестного тикета игнорируется.
func (c *Compositor) Settle(req PatchRequest, updated *entity.Entity, patchErr error) (Settlement, error) {
	key := projectKey(req.EntityID)
	p, ok := c.pending[key]
	t, exists := c.entities[key]
	if !ok || p.ticket != req.Ticket || !exists {
		patchOutcomes.WithLabelValues("ignored").Inc()
		return Settlement{Ticket: req.Ticket, EntityID: req.EntityID, Attempted: req.To, Stale: true}, nil
	}
	delete(c.pending, key)
	p.cancel()

	s := Settlement{Ticket: req.Ticket, EntityID: req.EntityID, Attempted: req.To}
	if patchErr != nil {
		t.entity.Position = t.confirmed
		s.Position = t.confirmed
		patchOutcomes.WithLabelValues("rolled_back").Inc()
		c.publish(eventbus.TypeRelocateFailed, eventbus.RelocateFailed{
			EntityID:   req.EntityID,
			Attempted:  req.To,
			RestoredTo: t.confirmed,
			Error:      patchErr.Error(),
		})
		c.log.Warn("relocation of project %s to %v rolled back: %v", req.EntityID, req.To, patchErr)
		return s, fmt.Errorf("%w: %w", ErrPatchRejected, patchErr)
	}

	confirmed := req.To
	if updated != nil && updated.Kind == entity.KindProject && updated.ID == req.EntityID {
		confirmed = updated.Position
		// неполный ответ бэкенда подтверждает только позицию
		if updated.Validate() == nil {
			t.entity = *updated
		}
	}
	t.entity.Position = confirmed
	t.confirmed = confirmed
	s.Position = confirmed
	s.Confirmed = true
	patchOutcomes.WithLabelValues("confirmed").Inc()
	c.publish(eventbus.TypeMarkerRelocated, eventbus.MarkerRelocated{EntityID: req.EntityID, From: req.From, To: confirmed})
	return s, nil
}

// Pending сообщает, ждёт ли проект ответа на патч
func (c *Compositor) Pending(id string) bool {
	_, ok := c.pending[projectKey(id)]
	return ok
}

func (c *Compositor) publish(eventType string, payload any) {
	if c.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventType, payload)
	if err != nil {
		c.log.Error("event %s not encoded: %v", eventType, err)
		return
	}
	if err := c.bus.Publish(context.Background(), ev); err != nil {
		c.log.Warn("event %s not published: %v", eventType, err)
	}
}
