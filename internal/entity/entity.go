package entity

import (
	"fmt"
	"strings"

	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/vec"
)

// Kind вариант сущности на карте
type Kind uint8

const (
	KindPin Kind = iota
	KindProject
	KindPlayer
)

func (k Kind) String() string {
	switch k {
	case KindPin:
		return "pin"
	case KindProject:
		return "project"
	case KindPlayer:
		return "player"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind разбирает вид сущности ("pin", "project", "player")
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pin":
		return KindPin, nil
	case "project":
		return KindProject, nil
	case "player":
		return KindPlayer, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// PinType категория метки
type PinType uint8

const (
	PinShop PinType = iota
	PinFarm
	PinRelic
)

// ProjectStatus состояние проекта
type ProjectStatus uint8

const (
	StatusOngoing ProjectStatus = iota
	StatusCompleted
	StatusAbandoned
)

// Категории переключателей точек
const (
	CategoryShops    = "shops"
	CategoryFarms    = "farms"
	CategoryRelics   = "relics"
	CategoryProjects = "projects"
	CategoryPlayers  = "players"
	CategoryRegions  = "regions"
)

var (
	pinTypeNames = map[PinType]string{PinShop: "shop", PinFarm: "farm", PinRelic: "relic"}
	statusNames  = map[ProjectStatus]string{StatusOngoing: "ongoing", StatusCompleted: "completed", StatusAbandoned: "abandoned"}
)

func (t PinType) String() string { return pinTypeNames[t] }

func (s ProjectStatus) String() string { return statusNames[s] }

// ParsePinType разбирает тип метки без учёта регистра
func ParsePinType(s string) (PinType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range pinTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown pin type %q", s)
}

// ParseProjectStatus разбирает статус проекта без учёта регистра
func ParseProjectStatus(s string) (ProjectStatus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown project status %q", s)
}

// Entity точечная сущность карты: метка, проект или игрок.
// Поля PinType, Status и Hidden имеют смысл только для своего варианта.
type Entity struct {
	ID          string              `json:"id"`
	Kind        Kind                `json:"kind"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Position    vec.Vec3            `json:"position"`
	Dimension   dimension.Dimension `json:"dimension"`

	PinType PinType       `json:"-"`
	Status  ProjectStatus `json:"-"`
	Hidden  bool          `json:"-"`
}

// NewPin создаёт метку
func NewPin(id, name string, pos vec.Vec3, dim dimension.Dimension, t PinType) Entity {
	return Entity{ID: id, Kind: KindPin, Name: name, Position: pos, Dimension: dim, PinType: t}
}

// NewProject создаёт проект
func NewProject(id, name string, pos vec.Vec3, dim dimension.Dimension, st ProjectStatus) Entity {
	return Entity{ID: id, Kind: KindProject, Name: name, Position: pos, Dimension: dim, Status: st}
}

// NewPlayer создаёт игрока
func NewPlayer(id, name string, pos vec.Vec3, dim dimension.Dimension, hidden bool) Entity {
	return Entity{ID: id, Kind: KindPlayer, Name: name, Position: pos, Dimension: dim, Hidden: hidden}
}

// Key уникален среди всех вариантов: id метки и проекта могут совпадать
func (e Entity) Key() string {
	return e.Kind.String() + ":" + e.ID
}

// Category возвращает id переключателя, управляющего видимостью сущности
func (e Entity) Category() string {
	switch e.Kind {
	case KindPin:
		switch e.PinType {
		case PinShop:
			return CategoryShops
		case PinFarm:
			return CategoryFarms
		case PinRelic:
			return CategoryRelics
		}
	case KindProject:
		return CategoryProjects
	case KindPlayer:
		return CategoryPlayers
	}
	return ""
}

// Variant возвращает имя подкатегории: тип метки, статус проекта или "player"
func (e Entity) Variant() string {
	switch e.Kind {
	case KindPin:
		return e.PinType.String()
	case KindProject:
		return e.Status.String()
	}
	return e.Kind.String()
}

// Draggable только проекты можно переносить на карте
func (e Entity) Draggable() bool {
	return e.Kind == KindProject
}

// Validate проверяет, что сущность можно показать
func (e Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity without id")
	}
	if !e.Dimension.Known() {
		return fmt.Errorf("entity %s: unknown dimension", e.Key())
	}
	if e.Category() == "" {
		return fmt.Errorf("entity %s: unknown category", e.Key())
	}
	return nil
}

// WithPosition возвращает копию с новой позицией
func (e Entity) WithPosition(p vec.Vec3) Entity {
	e.Position = p
	return e
}
