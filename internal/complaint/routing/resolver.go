// Package routing maps complaint types to the municipal unit responsible.
package routing

import (
	"fmt"

	"civicdesk/internal/complaint/catalog"
	dErrors "civicdesk/pkg/domain-errors"
)

// SnapshotProvider yields the current catalog snapshot.
type SnapshotProvider interface {
	Snapshot() *catalog.Snapshot
}

// Resolver is a pure lookup against the current catalog.
type Resolver struct {
	catalog SnapshotProvider
}

func New(catalog SnapshotProvider) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the lowest unit id (byte-wise) among units accepting typeID.
func (r *Resolver) Resolve(typeID string) (string, error) {
	for _, u := range r.catalog.Snapshot().Units() {
		if u.Accepts(typeID) {
			return u.ID, nil
		}
	}
	return "", dErrors.New(dErrors.CodeRoutingNotFound, fmt.Sprintf("no municipal unit accepts type %q", typeID))
}

// CanHandle checks an explicit reassignment target.
func (r *Resolver) CanHandle(unitID, typeID string) error {
	u, ok := r.catalog.Snapshot().Unit(unitID)
	if !ok {
		return dErrors.New(dErrors.CodeRoutingNotFound, fmt.Sprintf("unknown municipal unit %q", unitID))
	}
	if !u.Accepts(typeID) {
		return dErrors.New(dErrors.CodeRoutingNotFound, fmt.Sprintf("unit %q does not accept type %q", unitID, typeID))
	}
	return nil
}
