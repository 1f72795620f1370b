package compositor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/worldmap/internal/backend"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/vec"
)

// ErrLoopStopped возвращается, если цикл уже остановлен
var ErrLoopStopped = errors.New("compositor loop stopped")

// Loop однопоточный цикл событий карты. Все обращения к Compositor
// выполняются в его горутине; патчи бэкенда идут асинхронно и возвращаются
// в цикл через ту же очередь команд.
type Loop struct {
	c      *Compositor
	source backend.Source
	cmds   chan func()
	done   chan struct{}

	patches    sync.WaitGroup
	refreshing atomic.Bool
	log        *logging.Logger

	mu        sync.Mutex
	listeners []func(Settlement, error)
}

// NewLoop создаёт цикл. Run нужно запустить отдельно.
func NewLoop(c *Compositor, source backend.Source) *Loop {
	return &Loop{
		c:      c,
		source: source,
		cmds:   make(chan func(), 64),
		done:   make(chan struct{}),
		log:    logging.GetMapLogger(),
	}
}

// OnSettle регистрирует получателя итогов переноса (вызывается в горутине цикла)
func (l *Loop) OnSettle(fn func(Settlement, error)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Run обрабатывает команды до отмены ctx. При refreshEvery > 0 списки сущностей
// периодически перечитываются у бэкенда.
func (l *Loop) Run(ctx context.Context, refreshEvery time.Duration) {
	defer close(l.done)

	var tick <-chan time.Time
	if refreshEvery > 0 {
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.cmds:
			cmd()
		case <-tick:
			// медленный бэкенд: новый снимок не запускается, пока не применён
			// предыдущий, иначе снимки могли бы лечь в обратном порядке
			if !l.refreshing.CompareAndSwap(false, true) {
				l.log.Debug("periodic refresh skipped: previous one still running")
				continue
			}
			go func() {
				defer l.refreshing.Store(false)
				if err := l.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
					l.log.Warn("periodic refresh failed: %v", err)
				}
			}()
		}
	}
}

// submit ставит команду в очередь, не дожидаясь выполнения
func (l *Loop) submit(ctx context.Context, cmd func()) error {
	select {
	case l.cmds <- cmd:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do выполняет fn в горутине цикла и ждёт результата
func (l *Loop) Do(ctx context.Context, fn func(c *Compositor) error) error {
	result := make(chan error, 1)
	if err := l.submit(ctx, func() { result <- fn(l.c) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Render строит набор отрисовки
func (l *Loop) Render(ctx context.Context, v View) (RenderSet, error) {
	var rs RenderSet
	err := l.Do(ctx, func(c *Compositor) error {
		rs = c.Render(v)
		return nil
	})
	return rs, err
}

// Refresh загружает списки сущностей у бэкенда и заменяет их в компоновщике
func (l *Loop) Refresh(ctx context.Context) error {
	snap, err := backend.FetchAll(ctx, l.source)
	if err != nil {
		return err
	}
	return l.Do(ctx, func(c *Compositor) error {
		if n := c.SetEntities(snap.Pins, snap.Projects, snap.Players); n > 0 {
			l.log.Info("refresh cancelled %d pending relocations", n)
		}
		return nil
	})
}

// BeginDrag проверяет, можно ли начать перенос
func (l *Loop) BeginDrag(ctx context.Context, kind entity.Kind, id string) error {
	return l.Do(ctx, func(c *Compositor) error {
		return c.BeginDrag(kind, id)
	})
}

// Drop сдвигает маркер и отправляет патч бэкенду асинхронно.
// Итог приходит слушателям OnSettle.
func (l *Loop) Drop(ctx context.Context, id string, p vec.Vec2Float) (PatchRequest, error) {
	var req PatchRequest
	err := l.Do(ctx, func(c *Compositor) error {
		var err error
		req, err = c.Drop(context.Background(), id, p)
		return err
	})
	if err != nil {
		return PatchRequest{}, err
	}

	l.patches.Add(1)
	go l.sendPatch(req)
	return req, nil
}

func (l *Loop) sendPatch(req PatchRequest) {
	defer l.patches.Done()

	updated, err := l.source.PatchProjectCoordinates(req.Context(), req.EntityID, req.To)
	var result *entity.Entity
	if err == nil {
		result = &updated
	}

	settle := func() {
		s, serr := l.c.Settle(req, result, err)
		l.mu.Lock()
		listeners := append([]func(Settlement, error){}, l.listeners...)
		l.mu.Unlock()
		for _, fn := range listeners {
			fn(s, serr)
		}
	}
	if err := l.submit(context.Background(), settle); err != nil {
		l.log.Warn("relocation %d of %s dropped: %v", req.Ticket, req.EntityID, err)
	}
}

// WaitPatches ждёт, пока все отправленные патчи вернутся в цикл
func (l *Loop) WaitPatches() {
	l.patches.Wait()
}

// Done закрывается после остановки цикла
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// BeginEdit открывает правку региона
func (l *Loop) BeginEdit(ctx context.Context, owner, regionID string) (EditState, error) {
	return l.edit(ctx, func(c *Compositor) (EditState, error) { return c.BeginEdit(owner, regionID) })
}

// EndEdit закрывает правку
func (l *Loop) EndEdit(ctx context.Context, owner string) error {
	return l.Do(ctx, func(c *Compositor) error {
		return c.EndEdit(owner)
	})
}

// EditVertexMove двигает вершину (превью)
func (l *Loop) EditVertexMove(ctx context.Context, owner, regionID string, i int, p vec.Vec2Float) (EditState, error) {
	return l.edit(ctx, func(c *Compositor) (EditState, error) { return c.EditVertexMove(owner, regionID, i, p) })
}

// EditVertexEnd фиксирует перетаскивание вершины
func (l *Loop) EditVertexEnd(ctx context.Context, owner, regionID string) (EditState, error) {
	return l.edit(ctx, func(c *Compositor) (EditState, error) { return c.EditVertexEnd(owner, regionID) })
}

// EditEdgeClick вставляет вершину
func (l *Loop) EditEdgeClick(ctx context.Context, owner, regionID string, p vec.Vec2Float) (EditState, error) {
	return l.edit(ctx, func(c *Compositor) (EditState, error) { return c.EditEdgeClick(owner, regionID, p) })
}

// EditVertexRemove удаляет вершину
func (l *Loop) EditVertexRemove(ctx context.Context, owner, regionID string, i int) (EditState, error) {
	return l.edit(ctx, func(c *Compositor) (EditState, error) { return c.EditVertexRemove(owner, regionID, i) })
}

func (l *Loop) edit(ctx context.Context, fn func(c *Compositor) (EditState, error)) (EditState, error) {
	var st EditState
	err := l.Do(ctx, func(c *Compositor) error {
		var err error
		st, err = fn(c)
		return err
	})
	return st, err
}
