// Package catalog holds the read-mostly complaint type and municipal unit
// tables. A Cache serves an immutable Snapshot and swaps it on Reload.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"civicdesk/internal/complaint/models"
	pstrings "civicdesk/pkg/platform/strings"
)

// Snapshot is one consistent view of the catalog. Never mutated after Build.
type Snapshot struct {
	types map[string]models.ComplaintType
	// units sorted by ID, so the first acceptor of a type is the routing choice.
	units []models.MunicipalUnit
	// Warnings lists consistency problems that do not block loading.
	Warnings []string
}

// Build validates and indexes raw catalog entries.
//
// Hard errors: empty or duplicate ids, units accepting unknown types.
// Types nobody accepts are reported in Warnings so RoutingNotFound stays reachable.
func Build(types []models.ComplaintType, units []models.MunicipalUnit) (*Snapshot, error) {
	s := &Snapshot{types: make(map[string]models.ComplaintType, len(types))}

	for _, t := range types {
		t.ID = strings.ToLower(strings.TrimSpace(t.ID))
		if t.ID == "" {
			return nil, fmt.Errorf("complaint type with empty id")
		}
		if _, dup := s.types[t.ID]; dup {
			return nil, fmt.Errorf("duplicate complaint type %q", t.ID)
		}
		s.types[t.ID] = t
	}

	seen := make(map[string]struct{}, len(units))
	accepted := make(map[string]struct{})
	for _, u := range units {
		u.ID = strings.ToLower(strings.TrimSpace(u.ID))
		if u.ID == "" {
			return nil, fmt.Errorf("municipal unit with empty id")
		}
		if _, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("duplicate municipal unit %q", u.ID)
		}
		seen[u.ID] = struct{}{}
		u.AcceptedTypes = pstrings.DedupeAndTrimLower(u.AcceptedTypes)
		for _, typeID := range u.AcceptedTypes {
			if _, ok := s.types[typeID]; !ok {
				return nil, fmt.Errorf("unit %q accepts unknown type %q", u.ID, typeID)
			}
			accepted[typeID] = struct{}{}
		}
		s.units = append(s.units, u)
	}
	sort.Slice(s.units, func(i, j int) bool { return s.units[i].ID < s.units[j].ID })

	for typeID := range s.types {
		if _, ok := accepted[typeID]; !ok {
			s.Warnings = append(s.Warnings, fmt.Sprintf("type %q has no accepting unit", typeID))
		}
	}
	sort.Strings(s.Warnings)
	return s, nil
}

// Type looks up a complaint type.
func (s *Snapshot) Type(typeID string) (models.ComplaintType, bool) {
	t, ok := s.types[typeID]
	return t, ok
}

// Unit looks up a municipal unit.
func (s *Snapshot) Unit(unitID string) (models.MunicipalUnit, bool) {
	i := sort.Search(len(s.units), func(i int) bool { return s.units[i].ID >= unitID })
	if i < len(s.units) && s.units[i].ID == unitID {
		return s.units[i], true
	}
	return models.MunicipalUnit{}, false
}

// Units returns the units in ascending id order.
func (s *Snapshot) Units() []models.MunicipalUnit {
	out := make([]models.MunicipalUnit, len(s.units))
	copy(out, s.units)
	return out
}

// TypeCount and UnitCount size the snapshot for logs.
func (s *Snapshot) TypeCount() int { return len(s.types) }
func (s *Snapshot) UnitCount() int { return len(s.units) }

func logWarnings(logger *slog.Logger, s *Snapshot) {
	if logger == nil {
		return
	}
	for _, w := range s.Warnings {
		logger.Warn("catalog consistency warning", "warning", w)
	}
}
