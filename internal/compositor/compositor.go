// Package compositor собирает итоговый набор отрисовки карты и маршрутизирует
// взаимодействия: перенос маркеров проектов и правку полигонов регионов.
//
// Compositor не потокобезопасен: им владеет одна горутина (см. Loop).
package compositor

import (
	"errors"

	"github.com/annel0/worldmap/internal/cluster"
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/editor"
	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/projection"
	"github.com/annel0/worldmap/internal/region"
	"github.com/annel0/worldmap/internal/toggles"
	"github.com/annel0/worldmap/internal/vec"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrNotDraggable  = errors.New("entity is not draggable")
	ErrPatchInFlight = errors.New("previous relocation is still pending")
	ErrPatchRejected = errors.New("relocation rejected")
	ErrNoEditSession = errors.New("no region edit in progress")

	ErrEditInProgress = errors.New("region is being edited by another editor")
)

// Options зависимости компоновщика
type Options struct {
	Regions  *region.Index
	Policy   cluster.Policy
	IconBase string
	Bus      eventbus.EventBus
}

// tracked сущность с последней подтверждённой позицией.
// Отображаемая позиция может быть оптимистичной, пока патч в пути.
type tracked struct {
	entity    entity.Entity
	confirmed vec.Vec3
}

// Compositor хранит списки сущностей, состояние переносов и сессию правки
type Compositor struct {
	icons   *IconSet
	policy  cluster.Policy
	regions *region.Index
	bus     eventbus.EventBus
	log     *logging.Logger

	entities map[string]*tracked
	order    []string

	pending    map[string]*pendingPatch
	nextTicket uint64

	editor  editor.Controller
	session   *editor.Session
	editOwner string
}

// New создаёт компоновщик
func New(opts Options) *Compositor {
	regions := opts.Regions
	if regions == nil {
		regions, _ = region.NewIndex(nil, 0)
	}
	c := &Compositor{
		icons:    NewIconSet(opts.IconBase),
		policy:   opts.Policy,
		regions:  regions,
		bus:      opts.Bus,
		log:      logging.GetMapLogger(),
		entities: make(map[string]*tracked),
		pending:  make(map[string]*pendingPatch),
	}
	c.editor = editor.Controller{OnUpdate: c.onPolygonCommit}
	return c
}

// Icons возвращает набор значков компоновщика
func (c *Compositor) Icons() *IconSet {
	return c.icons
}

// Regions возвращает индекс регионов
func (c *Compositor) Regions() *region.Index {
	return c.regions
}

// SetEntities заменяет списки сущностей. Подтверждённые позиции берутся из списков.
// Если сущность с незавершённым переносом исчезла, её патч отменяется,
// а его результат будет проигнорирован. Возвращает число отменённых патчей.
func (c *Compositor) SetEntities(pins, projects, players []entity.Entity) int {
	next := make(map[string]*tracked, len(pins)+len(projects)+len(players))
	order := make([]string, 0, cap(c.order))

	for _, list := range [][]entity.Entity{pins, projects, players} {
		for _, e := range list {
			key := e.Key()
			if _, dup := next[key]; dup {
				c.log.Warn("duplicate entity %s ignored", key)
				continue
			}
			t := &tracked{entity: e, confirmed: e.Position}
			if p, inFlight := c.pending[key]; inFlight {
				t.entity.Position = p.to
			}
			next[key] = t
			order = append(order, key)
		}
	}

	cancelled := 0
	for key, p := range c.pending {
		if _, ok := next[key]; !ok {
			p.cancel()
			delete(c.pending, key)
			cancelled++
			c.log.Info("relocation of %s cancelled: entity left the map", key)
		}
	}

	c.entities = next
	c.order = order
	return cancelled
}

// Entity возвращает сущность в отображаемом состоянии
func (c *Compositor) Entity(kind entity.Kind, id string) (entity.Entity, bool) {
	t, ok := c.entities[entity.Entity{Kind: kind, ID: id}.Key()]
	if !ok {
		return entity.Entity{}, false
	}
	return t.entity, true
}

// Confirmed возвращает последнюю подтверждённую позицию сущности
func (c *Compositor) Confirmed(kind entity.Kind, id string) (vec.Vec3, bool) {
	t, ok := c.entities[entity.Entity{Kind: kind, ID: id}.Key()]
	if !ok {
		return vec.Vec3{}, false
	}
	return t.confirmed, true
}

// View входные параметры отрисовки
type View struct {
	Points    toggles.Set
	Layers    toggles.Set
	Zoom      int
	Dimension dimension.Dimension
	Editing   bool
}

// Marker отдельный маркер сущности
type Marker struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Category    string        `json:"category"`
	Variant     string        `json:"variant"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Position    vec.Vec2Float `json:"position"`
	World       vec.Vec3      `json:"world"`
	Icon        Icon          `json:"icon"`
	Label       bool          `json:"label"`
	Draggable   bool          `json:"draggable"`
	Pending     bool          `json:"pending"`
}

// Group маркеры одного региона (или вне регионов) с решением о кластеризации
type Group struct {
	RegionID  string             `json:"region_id,omitempty"`
	Name      string             `json:"name,omitempty"`
	Color     string             `json:"color,omitempty"`
	Family    cluster.IconFamily `json:"family"`
	Collapsed bool               `json:"collapsed"`
	Radius    float64            `json:"radius"`
	Badge     Icon               `json:"badge"`
	Markers   []Marker           `json:"markers"`
}

// Polygon полигон региона: статичный или редактируемый
type Polygon struct {
	RegionID string          `json:"region_id"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	Vertices []vec.Vec2Float `json:"vertices"`
	Label    bool            `json:"label"`
	Editable bool            `json:"editable"`
	Dragging int             `json:"dragging"`
}

// RenderSet итоговый набор отрисовки
type RenderSet struct {
	Dimension  string    `json:"dimension"`
	Zoom       int       `json:"zoom"`
	TileLayer  string    `json:"tile_layer,omitempty"`
	Groups     []Group   `json:"groups"`
	Unassigned *Group    `json:"unassigned,omitempty"`
	Polygons   []Polygon `json:"polygons"`
	Skipped    int       `json:"skipped"`
}

// MarkerCount возвращает общее число маркеров
func (rs RenderSet) MarkerCount() int {
	n := 0
	for _, g := range rs.Groups {
		n += len(g.Markers)
	}
	if rs.Unassigned != nil {
		n += len(rs.Unassigned.Markers)
	}
	return n
}

// Render строит набор отрисовки. Некорректная сущность пропускается, остальные рисуются.
func (c *Compositor) Render(v View) RenderSet {
	rs := RenderSet{Dimension: v.Dimension.String(), Zoom: v.Zoom}
	if v.Layers.Visible(v.Dimension.String()) {
		rs.TileLayer = v.Dimension.String()
	}

	visible := make([]entity.Entity, 0, len(c.order))
	for _, key := range c.order {
		e := c.entities[key].entity
		if err := e.Validate(); err != nil {
			rs.Skipped++
			c.log.Debug("skip %s: %v", key, err)
			continue
		}
		if e.Dimension != v.Dimension || !v.Points.Visible(e.Category()) {
			continue
		}
		if e.Kind == entity.KindPlayer && e.Hidden {
			continue
		}
		visible = append(visible, e)
	}

	grouping := c.regions.GroupByRegion(visible, v.Dimension)
	family := c.policy.Family(v.Zoom)
	collapsed := c.policy.Collapsed(v.Zoom)

	for _, id := range grouping.Order {
		r, ok := c.regions.Get(id)
		if !ok {
			continue
		}
		g := Group{
			RegionID:  r.ID,
			Name:      r.Name,
			Color:     r.Color,
			Family:    family,
			Collapsed: collapsed,
			Radius:    c.policy.Radius(v.Zoom),
		}
		g.Markers = c.markers(grouping.ByRegion[id], v, &rs)
		if len(g.Markers) == 0 {
			continue
		}
		g.Badge = c.icons.Cluster(family, r.Color, len(g.Markers))
		rs.Groups = append(rs.Groups, g)
	}

	if len(grouping.Unassigned) > 0 {
		g := Group{Family: cluster.NumericCluster, Radius: c.policy.ExpandedRadius}
		g.Markers = c.markers(grouping.Unassigned, v, &rs)
		if len(g.Markers) > 0 {
			g.Badge = c.icons.Cluster(cluster.NumericCluster, "", len(g.Markers))
			rs.Unassigned = &g
		}
	}

	if v.Points.Visible(entity.CategoryRegions) {
		rs.Polygons = c.polygons(v)
	}

	renderedMarkers.Set(float64(rs.MarkerCount()))
	if rs.Skipped > 0 {
		skippedEntities.Add(float64(rs.Skipped))
	}
	return rs
}

func (c *Compositor) markers(list []entity.Entity, v View, rs *RenderSet) []Marker {
	out := make([]Marker, 0, len(list))
	for _, e := range list {
		icon, ok := c.icons.For(e)
		if !ok {
			rs.Skipped++
			continue
		}
		_, pending := c.pending[e.Key()]
		out = append(out, Marker{
			ID:          e.ID,
			Kind:        e.Kind.String(),
			Category:    e.Category(),
			Variant:     e.Variant(),
			Name:        e.Name,
			Description: e.Description,
			Position:    projection.ToProjected(e.Position, e.Dimension, v.Dimension),
			World:       e.Position,
			Icon:        icon,
			Label:       v.Points.LabelVisible(e.Category()),
			Draggable:   e.Draggable() && !pending,
			Pending:     pending,
		})
	}
	return out
}

func (c *Compositor) polygons(v View) []Polygon {
	regions := c.regions.Regions(v.Dimension)
	out := make([]Polygon, 0, len(regions))
	label := v.Points.LabelVisible(entity.CategoryRegions)
	for _, r := range regions {
		p := Polygon{
			RegionID: r.ID,
			Name:     r.Name,
			Color:    r.Color,
			Vertices: projection.PolygonToProjected(r.Vertices, r.Dimension, v.Dimension),
			Label:    label,
			Editable: v.Editing && r.Dimension == v.Dimension,
			Dragging: editor.NoDrag,
		}
		if p.Editable && c.session != nil && c.session.RegionID == r.ID {
			p.Vertices = vec.CloneVec2Floats(c.session.Vertices)
			p.Dragging = c.session.DragIndex
		}
		out = append(out, p)
	}
	return out
}
