package tiles

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// PaintFunc получает актуальный тайл ячейки; data == nil означает пустой тайл
type PaintFunc func(cell Cell, url string, data []byte)

// LoadStats итог одного показа области
type LoadStats struct {
	Requested int `json:"requested"`
	Painted   int `json:"painted"`
	Blank     int `json:"blank"`
	Discarded int `json:"discarded"`
}

// Loader показывает набор ячеек: назначает им URL в Grid и загружает тайлы
// параллельно. Поздние ответы для ячеек, которые уже не видны, отбрасываются.
type Loader struct {
	scheme   *Scheme
	fetcher  *Fetcher
	grid     *Grid
	parallel int
	onPaint  PaintFunc
}

// NewLoader создаёт загрузчик области
func NewLoader(scheme *Scheme, fetcher *Fetcher, parallel int, onPaint PaintFunc) *Loader {
	if parallel <= 0 {
		parallel = 8
	}
	return &Loader{
		scheme:   scheme,
		fetcher:  fetcher,
		grid:     NewGrid(),
		parallel: parallel,
		onPaint:  onPaint,
	}
}

// Grid возвращает сетку видимых ячеек
func (l *Loader) Grid() *Grid {
	return l.grid
}

// Show делает видимыми ячейки coords слоя layer и дожидается их загрузки.
// Координаты выше MaxNativeZoom сводятся к их нативным тайлам.
// Ячейки предыдущего показа, не вошедшие в новый, перестают быть видимыми.
func (l *Loader) Show(ctx context.Context, layer string, coords []Coord) LoadStats {
	visible := make(map[Cell]struct{}, len(coords))
	type job struct {
		cell Cell
		url  string
	}
	jobs := make([]job, 0, len(coords))

	for _, c := range coords {
		native, ok := l.scheme.Bounds.NativeTile(c)
		if !ok {
			continue
		}
		// выше нативного уровня ячейкой служит сам нативный тайл: слой рендера
		// растягивает его целиком, и соседние дочерние клетки не получают его копию
		cell := Cell{Layer: layer, Coord: native}
		if _, dup := visible[cell]; dup {
			continue
		}
		url := l.scheme.URL(layer, native)
		visible[cell] = struct{}{}
		l.grid.Assign(cell, url)
		jobs = append(jobs, job{cell: cell, url: url})
	}
	l.grid.Retain(visible)

	results := make([]int, len(jobs))
	const (
		painted = iota + 1
		blank
		discarded
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			data := l.fetcher.Fetch(gctx, j.url)
			if !l.grid.Paint(j.cell, j.url) {
				results[i] = discarded
				return nil
			}
			if data == nil {
				results[i] = blank
			} else {
				results[i] = painted
			}
			if l.onPaint != nil {
				l.onPaint(j.cell, j.url, data)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := LoadStats{Requested: len(jobs)}
	for _, r := range results {
		switch r {
		case painted:
			stats.Painted++
		case blank:
			stats.Blank++
		case discarded:
			stats.Discarded++
		}
	}
	return stats
}

// Range возвращает координаты прямоугольника тайлов [minX..maxX]×[minY..maxY] на уровне zoom
func Range(zoom, minX, minY, maxX, maxY int) []Coord {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	out := make([]Coord, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out = append(out, Coord{Zoom: zoom, X: x, Y: y})
		}
	}
	return out
}
