package tiles

import (
	"sync"
	"sync/atomic"
)

// Cell ячейка видимой сетки тайлов
type Cell struct {
	Layer string
	Coord Coord
}

// Grid хранит, какой URL сейчас назначен каждой видимой ячейке.
// Ответы на загрузку приходят в произвольном порядке; ответ, чей URL
// уже не совпадает с назначенным ячейке, отбрасывается и не рисуется.
type Grid struct {
	mu        sync.Mutex
	assigned  map[Cell]string
	painted   map[Cell]string
	discarded atomic.Int64
}

// NewGrid создаёт пустую сетку
func NewGrid() *Grid {
	return &Grid{
		assigned: make(map[Cell]string),
		painted:  make(map[Cell]string),
	}
}

// Assign назначает ячейке URL. Ранее нарисованное содержимое ячейки сбрасывается,
// если URL изменился.
func (g *Grid) Assign(cell Cell, url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.assigned[cell] != url {
		delete(g.painted, cell)
	}
	g.assigned[cell] = url
}

// Retain оставляет только перечисленные ячейки видимыми
func (g *Grid) Retain(visible map[Cell]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for cell := range g.assigned {
		if _, ok := visible[cell]; !ok {
			delete(g.assigned, cell)
			delete(g.painted, cell)
		}
	}
}

// Paint фиксирует пришедший тайл. Возвращает false, если ячейка уже не видна
// или ей назначен другой URL: такой ответ устарел.
func (g *Grid) Paint(cell Cell, url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.assigned[cell]; !ok || current != url {
		g.discarded.Add(1)
		return false
	}
	g.painted[cell] = url
	return true
}

// Assigned возвращает URL, назначенный ячейке
func (g *Grid) Assigned(cell Cell) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	url, ok := g.assigned[cell]
	return url, ok
}

// Painted сообщает, нарисован ли в ячейке актуальный тайл
func (g *Grid) Painted(cell Cell) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	url, ok := g.painted[cell]
	return ok && url == g.assigned[cell]
}

// Discarded возвращает число отброшенных устаревших ответов
func (g *Grid) Discarded() int64 {
	return g.discarded.Load()
}
