// Package objecttype maintains ARServer's in-memory ObjectType inheritance
// graph (spec.md §4.1): re-import on source-hash change, base-class
// extraction, inherited-action propagation, and the ADD/UPDATE/REMOVE
// delta computation behind every `ChangedObjectTypes` event.
//
// The original arcor2_arserver discovers actions by reflecting over Python
// source at runtime (original_source/ arcor2_arserver/object_types). The
// redesigned (spec.md §9) contract instead reads a declarative manifest
// produced by the Build service — this package only resolves inheritance
// and diffing over that manifest, never introspects source text itself.
package objecttype

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/arcor2/arcor2-core/arserver/internal/catalog"
	"github.com/arcor2/arcor2-core/shared/types"
)

// Graph holds every known ObjectType keyed by id, with actions fully
// resolved through inheritance.
type Graph struct {
	backend *catalog.ObjectTypeBackend
	types   map[string]types.ObjectType
}

// NewGraph constructs an empty Graph backed by the given catalog backend.
func NewGraph(backend *catalog.ObjectTypeBackend) *Graph {
	return &Graph{backend: backend, types: make(map[string]types.ObjectType)}
}

// Delta describes the ADD/UPDATE/REMOVE sets produced by one Refresh call
// (spec.md §4.1: "three ChangedObjectTypes events — ADD, UPDATE, REMOVE").
type Delta struct {
	Added   []types.ObjectType
	Updated []types.ObjectType
	Removed []string
}

// Refresh re-imports every ObjectType whose source hash changed, recomputes
// inheritance, and returns the delta against the previous known set.
func (g *Graph) Refresh(ctx context.Context) (Delta, error) {
	listing, err := g.backend.FetchListing(ctx)
	if err != nil {
		return Delta{}, fmt.Errorf("objecttype: refresh listing: %w", err)
	}

	next := make(map[string]types.ObjectType, len(listing))
	var delta Delta

	for id := range listing {
		prev, known := g.types[id]

		ot, err := g.backend.FetchEntity(ctx, id)
		if err != nil {
			// spec.md §4.1: compilation/model failures are retained as
			// disabled entries, never dropped from the listing.
			ot = types.ObjectType{ID: id, Disabled: true, Problem: err.Error()}
		} else {
			ot.SourceHash = hashSource(ot.Source)
		}

		if known && ot.SourceHash == prev.SourceHash && !ot.Disabled {
			// Unchanged — keep the previously resolved (inherited) copy.
			next[id] = prev
			continue
		}

		next[id] = ot
		if known {
			delta.Updated = append(delta.Updated, ot)
		} else {
			delta.Added = append(delta.Added, ot)
		}
	}

	for id, prev := range g.types {
		if _, stillPresent := next[id]; !stillPresent {
			delta.Removed = append(delta.Removed, id)
			_ = prev
		}
	}

	propagateInheritance(next)

	// Re-surface the fully resolved (post-inheritance) copies in the delta
	// so callers broadcast the final action sets, not the pre-propagation
	// ones.
	for i := range delta.Added {
		delta.Added[i] = next[delta.Added[i].ID]
	}
	for i := range delta.Updated {
		delta.Updated[i] = next[delta.Updated[i].ID]
	}

	g.types = next
	return delta, nil
}

// hashSource returns a stable content hash used to decide whether an
// ObjectType needs re-import (spec.md §4.1: "re-imports types whose source
// hash changed").
func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// propagateInheritance extracts each type's base class and propagates
// inherited actions into subclasses unless overridden, recording the most
// recent ancestor that declared each action in ActionMeta.Origins
// (spec.md §4.1).
func propagateInheritance(all map[string]types.ObjectType) {
	// Process in an order where a type's base is resolved before the type
	// itself — a simple fixed-point pass over the (small, acyclic)
	// inheritance forest is sufficient and avoids a topological sort
	// dependency.
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resolved := make(map[string]bool, len(all))
	var resolve func(id string, visiting map[string]bool)
	resolve = func(id string, visiting map[string]bool) {
		if resolved[id] || visiting[id] {
			return
		}
		ot, ok := all[id]
		if !ok {
			return
		}
		visiting[id] = true
		if ot.Base != "" {
			resolve(ot.Base, visiting)
			if base, ok := all[ot.Base]; ok {
				merged := make(map[string]types.ActionMeta, len(base.Actions)+len(ot.Actions))
				for name, am := range base.Actions {
					inherited := am
					if inherited.Origins == "" {
						inherited.Origins = ot.Base
					}
					merged[name] = inherited
				}
				for name, am := range ot.Actions {
					// Explicit declaration on the subclass overrides the
					// inherited one.
					am.Origins = ot.ID
					merged[name] = am
				}
				ot.Actions = merged
				all[id] = ot
			}
		}
		resolved[id] = true
		delete(visiting, id)
	}

	for _, id := range ids {
		resolve(id, make(map[string]bool))
	}
}

// Get returns the fully resolved ObjectType for id.
func (g *Graph) Get(id string) (types.ObjectType, bool) {
	ot, ok := g.types[id]
	return ot, ok
}

// All returns a snapshot of every known ObjectType.
func (g *Graph) All() map[string]types.ObjectType {
	out := make(map[string]types.ObjectType, len(g.types))
	for k, v := range g.types {
		out[k] = v
	}
	return out
}

// ResolveAction looks up the action metadata for the given object type and
// action name, following inheritance (already flattened by Refresh).
func (g *Graph) ResolveAction(objectTypeID, actionName string) (types.ActionMeta, bool) {
	ot, ok := g.types[objectTypeID]
	if !ok {
		return types.ActionMeta{}, false
	}
	am, ok := ot.Actions[actionName]
	return am, ok
}
