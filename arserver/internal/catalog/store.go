package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRemovedExternally is returned when an id present in a caller's working
// set has disappeared from the upstream listing (spec.md §4.3, scenario
// S6: "removed externally").
var ErrRemovedExternally = errors.New("catalog: removed externally")

// Entity is the minimal shape every cached catalog entity must expose so
// the store can compare modification timestamps (spec.md §4.3 rule c).
type Entity interface {
	EntityID() string
	EntityModified() time.Time
}

// Backend fetches and persists full entities and listings from the
// upstream Project/Storage service for one kind (scene, project, or object
// type). Implementations wrap client.go's HTTP calls.
type Backend[T Entity] interface {
	FetchListing(ctx context.Context) (map[string]ListingMeta, error)
	FetchEntity(ctx context.Context, id string) (T, error)
	PutEntity(ctx context.Context, e T) (modified time.Time, err error)
	DeleteEntity(ctx context.Context, id string) error
}

// ListingMeta mirrors shared/types.ListingEntry's role as the coarse
// per-kind directory record.
type ListingMeta struct {
	ID          string
	Name        string
	Description string
	Created     time.Time
	Modified    time.Time
}

// Store is the two-level cache for one entity kind (spec.md §4.3): a
// TTL-refreshed listing and an LRU of full entities. All writes serialize
// on writeMu; reads take the listing's own shared lock (spec.md §5).
type Store[T Entity] struct {
	backend Backend[T]
	listing *Listing[ListingMeta]
	lru     *LRU[T]
	writeMu sync.Mutex
}

// NewStore constructs a Store backed by backend, with the given listing TTL
// and LRU capacity (capacity<=0 means unbounded).
func NewStore[T Entity](backend Backend[T], ttl time.Duration, lruCapacity int) *Store[T] {
	return &Store[T]{
		backend: backend,
		listing: NewListing[ListingMeta](ttl),
		lru:     NewLRU[T](lruCapacity),
	}
}

// refreshListing re-fetches the listing from the backend if stale.
func (s *Store[T]) refreshListing(ctx context.Context) error {
	if !s.listing.Stale() {
		return nil
	}
	entries, err := s.backend.FetchListing(ctx)
	if err != nil {
		return fmt.Errorf("catalog: refresh listing: %w", err)
	}
	s.listing.Replace(entries)
	return nil
}

// Get implements spec.md §4.3's read algorithm:
// (a) consult listing; refresh if stale.
// (b) if id missing from listing, ErrRemovedExternally.
// (c) if cached entity's modified < listing's modified, refetch.
// (d) otherwise return the cached copy.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := s.refreshListing(ctx); err != nil {
		return zero, err
	}
	meta, ok := s.listing.Get(id)
	if !ok {
		s.lru.Delete(id)
		return zero, fmt.Errorf("%w: %s", ErrRemovedExternally, id)
	}

	if cached, ok := s.lru.Get(id); ok && !cached.EntityModified().Before(meta.Modified) {
		return cached, nil
	}

	entity, err := s.backend.FetchEntity(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("catalog: fetch entity %s: %w", id, err)
	}
	s.lru.Put(id, entity)
	return entity, nil
}

// List returns the current listing, refreshing it first if stale.
func (s *Store[T]) List(ctx context.Context) (map[string]ListingMeta, error) {
	if err := s.refreshListing(ctx); err != nil {
		return nil, err
	}
	return s.listing.All(), nil
}

// Put persists e and updates both cache levels with the new modified
// timestamp returned by the backend (spec.md §4.3: "Writes update both
// caches and return the new modified").
func (s *Store[T]) Put(ctx context.Context, e T) (time.Time, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	modified, err := s.backend.PutEntity(ctx, e)
	if err != nil {
		return time.Time{}, fmt.Errorf("catalog: put entity %s: %w", e.EntityID(), err)
	}

	s.lru.Put(e.EntityID(), e)
	s.listing.Put(e.EntityID(), ListingMeta{
		ID:       e.EntityID(),
		Modified: modified,
	})
	return modified, nil
}

// Delete purges id from both cache levels and the upstream service
// (spec.md §4.3: "Deletions purge from both levels").
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.DeleteEntity(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete entity %s: %w", id, err)
	}
	s.lru.Delete(id)
	s.listing.Delete(id)
	return nil
}
