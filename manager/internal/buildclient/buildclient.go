// Package buildclient fetches built execution package zips from the Build
// service (spec.md §6: "GET /project/<id>/publish?packageName=<str> returns
// a zip package; 4xx means 'rebuild and retry'; 5xx is fatal for this
// attempt"). Grounded on arserver/internal/catalog's projectStorageClient:
// same *http.Client-with-timeout idiom, same 4xx-vs-5xx error split, but no
// retry loop here — a 5xx is fatal for a single RunPackage attempt per
// spec.md, the caller (rpc.runPackage) decides whether to let the user retry.
package buildclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client is a thin HTTP client over the Build service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New returns a Client pointed at baseURL (default http://localhost:5008
// per spec.md §6).
func New(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger.Named("buildclient"),
	}
}

// ErrRebuildAndRetry is returned when the Build service responds 4xx,
// signalling the package must be rebuilt before another RunPackage attempt
// (spec.md §6).
type ErrRebuildAndRetry struct {
	Status int
	Body   string
}

func (e *ErrRebuildAndRetry) Error() string {
	return fmt.Sprintf("buildclient: rebuild and retry: status %d: %s", e.Status, e.Body)
}

// FetchPackage downloads the built zip for projectID, named packageName.
func (c *Client) FetchPackage(ctx context.Context, projectID, packageName string) ([]byte, error) {
	u := fmt.Sprintf("%s/project/%s/publish?packageName=%s", c.baseURL, url.PathEscape(projectID), url.QueryEscape(packageName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("buildclient: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("buildclient: fetch %s: %w", projectID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("buildclient: reading response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &ErrRebuildAndRetry{Status: resp.StatusCode, Body: string(body)}
	default:
		c.logger.Error("buildclient: fatal fetch failure",
			zap.String("project_id", projectID), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("buildclient: fetch %s: fatal status %d: %s", projectID, resp.StatusCode, string(body))
	}
}
