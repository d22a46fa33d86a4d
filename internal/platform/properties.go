package platform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PropertyKind — способ сопоставления property.
type PropertyKind string

const (
	KindExact   PropertyKind = "exact"
	KindMinimum PropertyKind = "minimum"
	KindIgnore  PropertyKind = "ignore"
)

// ParseKind парсит вид property.
func ParseKind(s string) (PropertyKind, error) {
	switch PropertyKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindExact:
		return KindExact, nil
	case KindMinimum:
		return KindMinimum, nil
	case KindIgnore:
		return KindIgnore, nil
	default:
		return "", fmt.Errorf("unknown platform property kind %q", s)
	}
}

// PropertyManager знает вид каждой property и сопоставляет наборы.
type PropertyManager struct {
	kinds map[string]PropertyKind
}

// NewPropertyManager создаёт PropertyManager.
// Properties, отсутствующие в kinds, сопоставляются как exact.
func NewPropertyManager(kinds map[string]PropertyKind) *PropertyManager {
	m := &PropertyManager{kinds: make(map[string]PropertyKind, len(kinds))}
	for name, kind := range kinds {
		m.kinds[name] = kind
	}
	return m
}

// Kind возвращает вид property.
func (m *PropertyManager) Kind(name string) PropertyKind {
	if kind, ok := m.kinds[name]; ok {
		return kind
	}
	return KindExact
}

// Kinds возвращает копию сконфигурированных видов.
func (m *PropertyManager) Kinds() map[string]PropertyKind {
	out := make(map[string]PropertyKind, len(m.kinds))
	for name, kind := range m.kinds {
		out[name] = kind
	}
	return out
}

// Validate проверяет, что значения minimum-properties — неотрицательные целые.
func (m *PropertyManager) Validate(props map[string]string) error {
	for _, name := range sortedKeys(props) {
		if m.Kind(name) != KindMinimum {
			continue
		}
		if _, err := parseQuantity(props[name]); err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
	}
	return nil
}

// Satisfies сообщает, удовлетворяет ли available требованиям required.
func (m *PropertyManager) Satisfies(required, available map[string]string) bool {
	for name, want := range required {
		switch m.Kind(name) {
		case KindIgnore:
			continue

		case KindMinimum:
			need, err := parseQuantity(want)
			if err != nil {
				return false
			}
			have, ok := available[name]
			if !ok {
				return false
			}
			got, err := parseQuantity(have)
			if err != nil || got < need {
				return false
			}

		default:
			if have, ok := available[name]; !ok || have != want {
				return false
			}
		}
	}
	return true
}

// Reserve возвращает новый набор available, в котором minimum-properties
// уменьшены на требуемые значения. Исходная map не меняется.
// Вызывать только после успешного Satisfies.
func (m *PropertyManager) Reserve(available, required map[string]string) map[string]string {
	return m.adjust(available, required, -1)
}

// Release возвращает зарезервированные Reserve значения.
func (m *PropertyManager) Release(available, required map[string]string) map[string]string {
	return m.adjust(available, required, +1)
}

func (m *PropertyManager) adjust(available, required map[string]string, sign int64) map[string]string {
	out := make(map[string]string, len(available))
	for k, v := range available {
		out[k] = v
	}

	for name, want := range required {
		if m.Kind(name) != KindMinimum {
			continue
		}
		need, err := parseQuantity(want)
		if err != nil {
			continue
		}
		have, err := parseQuantity(out[name])
		if err != nil {
			continue
		}

		next := int64(have) + sign*int64(need)
		if next < 0 {
			next = 0
		}
		out[name] = strconv.FormatInt(next, 10)
	}
	return out
}

// ParseKinds парсит список "name=kind,name=kind".
func ParseKinds(s string) (map[string]PropertyKind, error) {
	kinds := make(map[string]PropertyKind)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kindStr, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid platform property %q: expected name=kind", part)
		}
		kind, err := ParseKind(kindStr)
		if err != nil {
			return nil, err
		}
		kinds[strings.TrimSpace(name)] = kind
	}
	return kinds, nil
}

func parseQuantity(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected non-negative integer, got %q", s)
	}
	return v, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
