package catalog

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// ObjectTypeBackend implements Backend[types.ObjectType] over the
// Project/Storage service's /object_types endpoints (spec.md §6).
type ObjectTypeBackend struct{ c *projectStorageClient }

// NewObjectTypeBackend returns an ObjectTypeBackend pointed at baseURL.
func NewObjectTypeBackend(baseURL string, logger *zap.Logger) *ObjectTypeBackend {
	return &ObjectTypeBackend{c: newProjectStorageClient(baseURL, logger)}
}

// FetchListing implements Backend.
func (b *ObjectTypeBackend) FetchListing(ctx context.Context) (map[string]ListingMeta, error) {
	var listing []types.ListingEntry
	if err := b.c.doJSON(ctx, http.MethodGet, "/object_types", nil, &listing); err != nil {
		return nil, err
	}
	out := make(map[string]ListingMeta, len(listing))
	for _, e := range listing {
		out[e.ID] = ListingMeta{ID: e.ID, Name: e.Name, Description: e.Description, Created: e.Created, Modified: e.Modified}
	}
	return out, nil
}

// FetchEntity implements Backend.
func (b *ObjectTypeBackend) FetchEntity(ctx context.Context, id string) (types.ObjectType, error) {
	var ot types.ObjectType
	err := b.c.doJSON(ctx, http.MethodGet, "/object_types/"+id, nil, &ot)
	return ot, err
}

// PutEntity implements Backend.
func (b *ObjectTypeBackend) PutEntity(ctx context.Context, e types.ObjectType) (time.Time, error) {
	var result struct {
		Modified time.Time `json:"modified"`
	}
	if err := b.c.doJSON(ctx, http.MethodPut, "/object_types/"+e.ID, e, &result); err != nil {
		return time.Time{}, err
	}
	return result.Modified, nil
}

// DeleteEntity implements Backend.
func (b *ObjectTypeBackend) DeleteEntity(ctx context.Context, id string) error {
	return b.c.doJSON(ctx, http.MethodDelete, "/object_types/"+id, nil, nil)
}

// FetchModel retrieves a collision model of the given kind for an object
// type (spec.md §6: "GET /models/<id>/<kind>").
func (b *ObjectTypeBackend) FetchModel(ctx context.Context, id, kind string) ([]byte, error) {
	return b.c.getRaw(ctx, "/models/"+id+"/"+kind)
}
