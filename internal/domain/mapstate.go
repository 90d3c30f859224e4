package domain

// MapState is the dynamic, per-map state: which NPCs are present, the
// current overlay state of each interactable object, and which neighboring
// maps are currently accessible (spec.md §3).
type MapState struct {
	MapID           string                    `json:"map_id"`
	NPCs            []string                  `json:"npcs"`
	Objects         map[string]map[string]any `json:"objects"`
	AccessibleMaps  []string                  `json:"accessible_maps"`
}

// HasNPC reports whether the given character id is present on this map.
func (m *MapState) HasNPC(id string) bool {
	for _, n := range m.NPCs {
		if n == id {
			return true
		}
	}
	return false
}

// IsAccessible reports whether toMap is reachable from this map.
func (m *MapState) IsAccessible(toMap string) bool {
	for _, a := range m.AccessibleMaps {
		if a == toMap {
			return true
		}
	}
	return false
}

// ApplyAccessibilityEdge mutates AccessibleMaps per an add/remove directive.
// Removing a non-present edge is a documented no-op (§8 boundary case).
func (m *MapState) ApplyAccessibilityEdge(edge AccessibilityEdge) {
	if edge.FromMap != m.MapID {
		return
	}
	switch edge.Action {
	case "add":
		if !m.IsAccessible(edge.ToMap) {
			m.AccessibleMaps = append(m.AccessibleMaps, edge.ToMap)
		}
	case "remove":
		out := m.AccessibleMaps[:0]
		for _, a := range m.AccessibleMaps {
			if a != edge.ToMap {
				out = append(out, a)
			}
		}
		m.AccessibleMaps = out
	}
}

// MapCatalogEntry is the static row loaded from the `maps` table: its
// starting set of accessible neighbors before any event has mutated them.
type MapCatalogEntry struct {
	MapID              string
	Name               string
	AccessibleLocations []string
}

// InteractableObjectCatalogEntry is the static row loaded from the
// `interactable_objects` table, used to seed a map's object-state blob the
// first time the map is visited (SPEC_FULL §3 supplement).
type InteractableObjectCatalogEntry struct {
	ObjectID     string
	Name         string
	MapID        string
	DefaultState map[string]any
}
