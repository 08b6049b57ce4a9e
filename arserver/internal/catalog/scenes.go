package catalog

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// SceneBackend implements Backend[types.Scene] over the Project/Storage
// service's /scenes endpoints (spec.md §6).
type SceneBackend struct{ c *projectStorageClient }

// NewSceneBackend returns a SceneBackend pointed at baseURL.
func NewSceneBackend(baseURL string, logger *zap.Logger) *SceneBackend {
	return &SceneBackend{c: newProjectStorageClient(baseURL, logger)}
}

// FetchListing implements Backend.
func (b *SceneBackend) FetchListing(ctx context.Context) (map[string]ListingMeta, error) {
	var listing []types.ListingEntry
	if err := b.c.doJSON(ctx, http.MethodGet, "/scenes", nil, &listing); err != nil {
		return nil, err
	}
	out := make(map[string]ListingMeta, len(listing))
	for _, e := range listing {
		out[e.ID] = ListingMeta{ID: e.ID, Name: e.Name, Description: e.Description, Created: e.Created, Modified: e.Modified}
	}
	return out, nil
}

// FetchEntity implements Backend.
func (b *SceneBackend) FetchEntity(ctx context.Context, id string) (types.Scene, error) {
	var s types.Scene
	err := b.c.doJSON(ctx, http.MethodGet, "/scenes/"+id, nil, &s)
	return s, err
}

// PutEntity implements Backend.
func (b *SceneBackend) PutEntity(ctx context.Context, e types.Scene) (time.Time, error) {
	var result struct {
		Modified time.Time `json:"modified"`
	}
	if err := b.c.doJSON(ctx, http.MethodPut, "/scenes/"+e.ID, e, &result); err != nil {
		return time.Time{}, err
	}
	return result.Modified, nil
}

// DeleteEntity implements Backend.
func (b *SceneBackend) DeleteEntity(ctx context.Context, id string) error {
	return b.c.doJSON(ctx, http.MethodDelete, "/scenes/"+id, nil, nil)
}
