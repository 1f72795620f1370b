package region

import (
	"fmt"
	"sync"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/geometry"
	"github.com/annel0/worldmap/internal/vec"
)

// DefaultCellSize размер ячейки грубой сетки в блоках
const DefaultCellSize = 256

// Grouping результат распределения сущностей по регионам
type Grouping struct {
	ByRegion   map[string][]entity.Entity
	Order      []string // id регионов с сущностями в порядке списка регионов
	Unassigned []entity.Entity
}

// cellKey ключ ячейки грубой сетки
type cellKey struct {
	dim  dimension.Dimension
	x, z int
}

// indexedRegion хранит регион с предвычисленными данными
type indexedRegion struct {
	region Region
	order  int
	bounds geometry.BBox
	poly   []vec.Vec2Float
}

// Index статический набор регионов с сеткой кандидатов.
// Каждой ячейке сетки соответствуют регионы, чей прямоугольник её пересекает,
// в порядке списка; точная проверка выполняется только для них.
type Index struct {
	mu       sync.RWMutex
	cellSize int
	regions  []*indexedRegion
	byID     map[string]*indexedRegion
	cells    map[cellKey][]*indexedRegion
}

// NewIndex строит индекс. Регион с некорректными данными отклоняет весь список.
func NewIndex(regions []Region, cellSize int) (*Index, error) {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	idx := &Index{
		cellSize: cellSize,
		byID:     make(map[string]*indexedRegion, len(regions)),
	}
	for i, r := range regions {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.Dimension == dimension.Unknown {
			r.Dimension = dimension.Overworld
		}
		if _, dup := idx.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region id %q", r.ID)
		}
		ir := newIndexedRegion(r.Clone(), i)
		idx.regions = append(idx.regions, ir)
		idx.byID[r.ID] = ir
	}
	idx.rebuildCells()
	return idx, nil
}

func newIndexedRegion(r Region, order int) *indexedRegion {
	return &indexedRegion{
		region: r,
		order:  order,
		bounds: geometry.Of(r.Vertices),
		poly:   geometry.ToFloat(r.Vertices),
	}
}

// floorDiv делит с округлением вниз для отрицательных координат
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (idx *Index) cellsForBounds(dim dimension.Dimension, b geometry.BBox) []cellKey {
	minX, minZ := floorDiv(b.MinX, idx.cellSize), floorDiv(b.MinZ, idx.cellSize)
	maxX, maxZ := floorDiv(b.MaxX, idx.cellSize), floorDiv(b.MaxZ, idx.cellSize)
	keys := make([]cellKey, 0, (maxX-minX+1)*(maxZ-minZ+1))
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			keys = append(keys, cellKey{dim: dim, x: x, z: z})
		}
	}
	return keys
}

// rebuildCells перестраивает сетку; регионы добавляются в порядке списка
func (idx *Index) rebuildCells() {
	idx.cells = make(map[cellKey][]*indexedRegion)
	for _, ir := range idx.regions {
		for _, key := range idx.cellsForBounds(ir.region.Dimension, ir.bounds) {
			idx.cells[key] = append(idx.cells[key], ir)
		}
	}
}

// Locate возвращает первый по порядку регион, содержащий точку (x, z) мира.
// Точка на границе принадлежит региону.
func (idx *Index) Locate(p vec.Vec2, dim dimension.Dimension) (Region, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if ir := idx.locate(p, dim); ir != nil {
		return ir.region.Clone(), true
	}
	return Region{}, false
}

func (idx *Index) locate(p vec.Vec2, dim dimension.Dimension) *indexedRegion {
	key := cellKey{dim: dim, x: floorDiv(p.X, idx.cellSize), z: floorDiv(p.Y, idx.cellSize)}
	pf := vec.FromVec2(p)
	for _, ir := range idx.cells[key] {
		if !ir.bounds.ContainsPoint(p) {
			continue
		}
		if geometry.Contains(pf, ir.poly) {
			return ir
		}
	}
	return nil
}

// GroupByRegion распределяет сущности измерения dim по первому содержащему региону.
// Сущности вне регионов попадают в Unassigned. Порядок внутри групп сохраняется.
func (idx *Index) GroupByRegion(entities []entity.Entity, dim dimension.Dimension) Grouping {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	g := Grouping{ByRegion: make(map[string][]entity.Entity)}
	orderOf := make(map[string]int)
	for _, e := range entities {
		ir := idx.locate(e.Position.XZ(), dim)
		if ir == nil {
			g.Unassigned = append(g.Unassigned, e)
			continue
		}
		id := ir.region.ID
		if _, seen := g.ByRegion[id]; !seen {
			orderOf[id] = ir.order
			g.Order = append(g.Order, id)
		}
		g.ByRegion[id] = append(g.ByRegion[id], e)
	}
	sortByOrder(g.Order, orderOf)
	return g
}

// sortByOrder вставками, групп обычно единицы
func sortByOrder(ids []string, orderOf map[string]int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && orderOf[ids[j]] < orderOf[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// Replace заменяет вершины региона после подтверждённой правки
func (idx *Index) Replace(id string, vertices []vec.Vec2) error {
	if len(vertices) < MinVertices {
		return fmt.Errorf("region %s: %w", id, ErrTooFewVertices)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ir, ok := idx.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, id)
	}
	r := ir.region
	r.Vertices = vec.CloneVec2s(vertices)
	updated := newIndexedRegion(r, ir.order)
	idx.regions[ir.order] = updated
	idx.byID[id] = updated
	idx.rebuildCells()
	return nil
}

// Get возвращает копию региона
func (idx *Index) Get(id string) (Region, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ir, ok := idx.byID[id]
	if !ok {
		return Region{}, false
	}
	return ir.region.Clone(), true
}

// Regions возвращает регионы измерения dim в порядке списка.
// dimension.Unknown возвращает все регионы.
func (idx *Index) Regions(dim dimension.Dimension) []Region {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Region, 0, len(idx.regions))
	for _, ir := range idx.regions {
		if dim == dimension.Unknown || ir.region.Dimension == dim {
			out = append(out, ir.region.Clone())
		}
	}
	return out
}

// Len возвращает число регионов
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.regions)
}

// GetStats возвращает статистику сетки
func (idx *Index) GetStats() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	maxPerCell := 0
	total := 0
	for _, c := range idx.cells {
		total += len(c)
		if len(c) > maxPerCell {
			maxPerCell = len(c)
		}
	}
	avg := 0.0
	if len(idx.cells) > 0 {
		avg = float64(total) / float64(len(idx.cells))
	}
	return fmt.Sprintf("RegionIndex Stats: %d regions, %d cells, avg %.2f regions/cell, max %d regions/cell",
		len(idx.regions), len(idx.cells), avg, maxPerCell)
}
