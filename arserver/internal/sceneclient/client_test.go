package sceneclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/shared/types"
)

func TestClient_FocusHappyPath(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/objects/obj1/focus", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pose":{"position":{"x":1,"y":2,"z":3},"orientation":{}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	pose, err := c.Focus(t.Context(), "obj1", []types.Pose{{}}, []types.Pose{{}})
	require.NoError(t, err)
	require.Equal(t, 1.0, pose.Position.X)
}

func TestClient_RetriesOn5xxThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"safe":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	safe, err := c.LineCheck(t.Context(), types.Position{}, types.Position{X: 1})
	require.NoError(t, err)
	require.True(t, safe)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ReturnsImmediatelyOn4xx(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`not found`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	err := c.DeleteCollision(t.Context(), "obj1")
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	err := c.UpsertCollision(t.Context(), "obj1", types.Pose{})
	require.Error(t, err)
	require.Equal(t, int32(maxRetries+1), atomic.LoadInt32(&calls))
}
