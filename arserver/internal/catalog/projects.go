package catalog

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

// ProjectBackend implements Backend[types.Project] over the Project/Storage
// service's /projects endpoints (spec.md §6).
type ProjectBackend struct{ c *projectStorageClient }

// NewProjectBackend returns a ProjectBackend pointed at baseURL.
func NewProjectBackend(baseURL string, logger *zap.Logger) *ProjectBackend {
	return &ProjectBackend{c: newProjectStorageClient(baseURL, logger)}
}

// FetchListing implements Backend.
func (b *ProjectBackend) FetchListing(ctx context.Context) (map[string]ListingMeta, error) {
	var listing []types.ListingEntry
	if err := b.c.doJSON(ctx, http.MethodGet, "/projects", nil, &listing); err != nil {
		return nil, err
	}
	out := make(map[string]ListingMeta, len(listing))
	for _, e := range listing {
		out[e.ID] = ListingMeta{ID: e.ID, Name: e.Name, Description: e.Description, Created: e.Created, Modified: e.Modified}
	}
	return out, nil
}

// FetchEntity implements Backend.
func (b *ProjectBackend) FetchEntity(ctx context.Context, id string) (types.Project, error) {
	var p types.Project
	err := b.c.doJSON(ctx, http.MethodGet, "/projects/"+id, nil, &p)
	return p, err
}

// PutEntity implements Backend.
func (b *ProjectBackend) PutEntity(ctx context.Context, e types.Project) (time.Time, error) {
	var result struct {
		Modified time.Time `json:"modified"`
	}
	if err := b.c.doJSON(ctx, http.MethodPut, "/projects/"+e.ID, e, &result); err != nil {
		return time.Time{}, err
	}
	return result.Modified, nil
}

// DeleteEntity implements Backend.
func (b *ProjectBackend) DeleteEntity(ctx context.Context, id string) error {
	return b.c.doJSON(ctx, http.MethodDelete, "/projects/"+id, nil, nil)
}
