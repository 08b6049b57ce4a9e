// Package sceneclient is a thin HTTP client over the Scene service
// (spec.md §6 "ARServer <-> Scene service (HTTP)"): collision upsert/delete
// keyed by object id, the mesh focus endpoint the Object Aiming state
// machine's Done transition calls, and the line-check endpoint used for
// safe motion planning. Idiom grounded on
// arserver/internal/catalog/client.go's projectStorageClient (itself
// grounded on the teacher's webhookSender,
// server/internal/notification/sender_webhook.go): a *http.Client with a
// fixed timeout, context-scoped requests, bounded retry with jitter on 5xx.
package sceneclient

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

	"github.com/arcor2/arcor2-core/shared/types"
)

// Client talks to the Scene service (spec.md §6 default port 5013).
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient returns a Client pointed at baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.Named("sceneclient"),
	}
}

// maxRetries bounds the transient-5xx retry loop (spec.md §7: "bounded
// retry with jitter"), mirroring catalog.projectStorageClient.
const maxRetries = 3

// focusRequest is the payload of the mesh focus endpoint: the object's
// declared focus points and the robot poses recorded against them, in the
// same order (spec.md §6: "mesh focus endpoint taking (object focus
// points, recorded robot poses) and returning a computed pose").
type focusRequest struct {
	FocusPoints []types.Pose `json:"focusPoints"`
	RobotPoses  []types.Pose `json:"robotPoses"`
}

type focusResponse struct {
	Pose types.Pose `json:"pose"`
}

// Focus asks the Scene service to compute obj's new pose from its mesh
// focus points and the robot poses recorded against them, in index order
// (spec.md §4.1 Done transition).
func (c *Client) Focus(ctx context.Context, objectID string, focusPoints, robotPoses []types.Pose) (types.Pose, error) {
	var resp focusResponse
	path := fmt.Sprintf("/objects/%s/focus", objectID)
	if err := c.doJSON(ctx, http.MethodPut, path, focusRequest{FocusPoints: focusPoints, RobotPoses: robotPoses}, &resp); err != nil {
		return types.Pose{}, fmt.Errorf("sceneclient: focus %s: %w", objectID, err)
	}
	return resp.Pose, nil
}

// UpsertCollision pushes obj's current collision model to the Scene
// service, keyed by object id (spec.md §6).
func (c *Client) UpsertCollision(ctx context.Context, objectID string, pose types.Pose) error {
	path := fmt.Sprintf("/collisions/%s", objectID)
	if err := c.doJSON(ctx, http.MethodPut, path, struct {
		Pose types.Pose `json:"pose"`
	}{Pose: pose}, nil); err != nil {
		return fmt.Errorf("sceneclient: upsert collision %s: %w", objectID, err)
	}
	return nil
}

// DeleteCollision removes obj's collision model from the Scene service.
func (c *Client) DeleteCollision(ctx context.Context, objectID string) error {
	path := fmt.Sprintf("/collisions/%s", objectID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("sceneclient: delete collision %s: %w", objectID, err)
	}
	return nil
}

type lineCheckRequest struct {
	From types.Position `json:"from"`
	To   types.Position `json:"to"`
}

type lineCheckResponse struct {
	Safe bool `json:"safe"`
}

// LineCheck reports whether the straight-line segment from..to is clear of
// known collision models, used for safe motion planning (spec.md §6).
func (c *Client) LineCheck(ctx context.Context, from, to types.Position) (bool, error) {
	var resp lineCheckResponse
	if err := c.doJSON(ctx, http.MethodPost, "/line-check", lineCheckRequest{From: from, To: to}, &resp); err != nil {
		return false, fmt.Errorf("sceneclient: line check: %w", err)
	}
	return resp.Safe, nil
}

// doJSON issues method against path, retrying on 5xx responses with
// jittered backoff. 4xx responses are returned immediately as permanent
// errors.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
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
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
			continue
		}

		status := resp.StatusCode
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			continue
		}

		switch {
		case status >= 200 && status < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		case status >= 500:
			lastErr = fmt.Errorf("%s %s: upstream 5xx (%d)", method, path, status)
			c.logger.Warn("transient scene service error, retrying",
				zap.String("method", method), zap.String("path", path),
				zap.Int("status", status), zap.Int("attempt", attempt))
			continue
		default:
			return fmt.Errorf("%s %s: status %d: %s", method, path, status, string(respBody))
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}
