package dimension

import (
	"encoding/json"
	"strings"
)

// Dimension одно из трёх непересекающихся пространств мира Minecraft.
type Dimension int

const (
	// Unknown нераспознанное значение. Масштабирование к нему не применяется.
	Unknown Dimension = iota
	Overworld
	Nether
	TheEnd
)

// Namespace префикс, с которым бэкенд присылает идентификаторы измерений
const Namespace = "minecraft:"

// All возвращает известные измерения в порядке отображения слоёв
func All() []Dimension {
	return []Dimension{Overworld, Nether, TheEnd}
}

// Parse разбирает имя измерения с префиксом "minecraft:" или без него.
// Нераспознанные значения дают Unknown, ошибки нет.
func Parse(s string) Dimension {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, Namespace)
	switch name {
	case "overworld":
		return Overworld
	case "nether", "the_nether":
		return Nether
	case "the_end", "end":
		return TheEnd
	default:
		return Unknown
	}
}

// String возвращает имя без префикса (совпадает с id слоя тайлов)
func (d Dimension) String() string {
	switch d {
	case Overworld:
		return "overworld"
	case Nether:
		return "nether"
	case TheEnd:
		return "the_end"
	default:
		return "unknown"
	}
}

// Namespaced возвращает идентификатор в формате бэкенда
func (d Dimension) Namespaced() string {
	switch d {
	case Overworld:
		return Namespace + "overworld"
	case Nether:
		return Namespace + "the_nether"
	case TheEnd:
		return Namespace + "the_end"
	default:
		return ""
	}
}

// Known сообщает, является ли значение одним из трёх измерений
func (d Dimension) Known() bool {
	return d == Overworld || d == Nether || d == TheEnd
}

// MarshalJSON сериализует измерение в формате бэкенда
func (d Dimension) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Namespaced())
}

// UnmarshalJSON принимает любую форму имени; неизвестное значение не ошибка
func (d *Dimension) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = Parse(s)
	return nil
}

// UnmarshalYAML позволяет писать измерение строкой в файле регионов
func (d *Dimension) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*d = Parse(s)
	return nil
}
