package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// projectStorageClient is a thin HTTP client over the Project/Storage
// service (spec.md §6): GET/PUT/DELETE on scenes, projects, and object
// types. Idiom grounded on the teacher's webhookSender
// (server/internal/notification/sender_webhook.go): a *http.Client with a
// fixed timeout, context-scoped requests, explicit status handling.
type projectStorageClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// newProjectStorageClient returns a client pointed at baseURL (default
// http://localhost:11000 per spec.md §6).
func newProjectStorageClient(baseURL string, logger *zap.Logger) *projectStorageClient {
	return &projectStorageClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.Named("catalog.client"),
	}
}

// maxRetries bounds the transient-5xx retry loop (spec.md §7: "bounded
// retry with jitter").
const maxRetries = 3

// getRaw issues a GET against path and returns the raw response body,
// without assuming a JSON shape — used for binary collision-model payloads
// (spec.md §6: "GET /models/<id>/<kind>").
func (c *projectStorageClient) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog: %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

// doJSON issues method against path, retrying on 5xx responses with jittered
// backoff. 4xx responses are returned immediately as permanent errors.
func (c *projectStorageClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("catalog: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt)*200*time.Millisecond + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("catalog: build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("catalog: %s %s: %w", method, path, err)
			continue
		}

		status := resp.StatusCode
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("catalog: reading response body: %w", readErr)
			continue
		}

		switch {
		case status >= 200 && status < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("catalog: decode response: %w", err)
				}
			}
			return nil
		case status >= 500:
			lastErr = fmt.Errorf("catalog: %s %s: upstream 5xx (%d)", method, path, status)
			c.logger.Warn("transient catalog error, retrying",
				zap.String("method", method), zap.String("path", path),
				zap.Int("status", status), zap.Int("attempt", attempt))
			continue
		default:
			// 4xx: "rebuild and retry" semantics belong to the caller, not
			// this transport — surface immediately (spec.md §6).
			return fmt.Errorf("catalog: %s %s: status %d: %s", method, path, status, string(respBody))
		}
	}
	return fmt.Errorf("catalog: exhausted retries: %w", lastErr)
}
