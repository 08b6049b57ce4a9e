package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcor2/arcor2-core/arserver/internal/catalog"
	"github.com/arcor2/arcor2-core/arserver/internal/objecttype"
	"github.com/arcor2/arcor2-core/shared/types"
)

// newTestGraph serves a single ObjectType ("robot", action "move" taking one
// string parameter "target") over an httptest server and returns a fully
// refreshed objecttype.Graph, mirroring how main.go wires the real backend.
func newTestGraph(t *testing.T) *objecttype.Graph {
	t.Helper()

	ot := types.ObjectType{
		ID: "robot",
		Actions: map[string]types.ActionMeta{
			"move": {
				Name:       "move",
				Parameters: []types.ActionParameterMeta{{Name: "target", Type: types.ParamString}},
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/object_types":
			_ = json.NewEncoder(w).Encode([]types.ListingEntry{{ID: ot.ID}})
		case strings.HasPrefix(r.URL.Path, "/object_types/"):
			_ = json.NewEncoder(w).Encode(ot)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	backend := catalog.NewObjectTypeBackend(srv.URL, zap.NewNop())
	graph := objecttype.NewGraph(backend)
	_, err := graph.Refresh(context.Background())
	require.NoError(t, err)
	return graph
}

func TestResolveActionType(t *testing.T) {
	t.Parallel()
	graph := newTestGraph(t)
	scene := types.Scene{Objects: []types.SceneObject{{ID: "obj1", Type: "robot"}}}

	meta, err := resolveActionType(graph, scene, "obj1/move")
	require.NoError(t, err)
	require.Equal(t, "move", meta.Name)

	_, err = resolveActionType(graph, scene, "no-slash")
	require.Error(t, err)

	_, err = resolveActionType(graph, scene, "missing/move")
	require.Error(t, err)

	_, err = resolveActionType(graph, scene, "obj1/nonexistent")
	require.Error(t, err)
}

func TestValidateActionParameters(t *testing.T) {
	t.Parallel()
	meta := types.ActionMeta{
		Name:       "move",
		Parameters: []types.ActionParameterMeta{{Name: "target", Type: types.ParamString}},
	}

	t.Run("undeclared parameter rejected", func(t *testing.T) {
		err := validateActionParameters(types.Project{}, meta, []types.ActionParameter{
			{Name: "unknown", Type: types.ParamString, Source: types.SourceLiteral},
		})
		require.Error(t, err)
	})

	t.Run("type mismatch rejected", func(t *testing.T) {
		err := validateActionParameters(types.Project{}, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamInt, Source: types.SourceLiteral},
		})
		require.Error(t, err)
	})

	t.Run("literal accepted", func(t *testing.T) {
		err := validateActionParameters(types.Project{}, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamString, Value: `"hi"`, Source: types.SourceLiteral},
		})
		require.NoError(t, err)
	})

	t.Run("link reference resolved", func(t *testing.T) {
		project := types.Project{ActionPoints: []types.ActionPoint{{
			Actions: []types.Action{{ID: "producer", Flows: []types.Flow{{Outputs: []string{"result"}}}}},
		}}}
		err := validateActionParameters(project, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamString, Value: "producer/result", Source: types.SourceLink},
		})
		require.NoError(t, err)
	})

	t.Run("link reference to missing output rejected", func(t *testing.T) {
		project := types.Project{ActionPoints: []types.ActionPoint{{
			Actions: []types.Action{{ID: "producer", Flows: []types.Flow{{Outputs: []string{"other"}}}}},
		}}}
		err := validateActionParameters(project, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamString, Value: "producer/result", Source: types.SourceLink},
		})
		require.Error(t, err)
	})

	t.Run("project parameter reference resolved", func(t *testing.T) {
		project := types.Project{Parameters: []types.ProjectParameter{
			{ID: "p1", Name: "greeting", Type: types.ParamString},
		}}
		err := validateActionParameters(project, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamString, Value: "greeting", Source: types.SourceProjectParameter},
		})
		require.NoError(t, err)
	})

	t.Run("project parameter type mismatch rejected", func(t *testing.T) {
		project := types.Project{Parameters: []types.ProjectParameter{
			{ID: "p1", Name: "greeting", Type: types.ParamInt},
		}}
		err := validateActionParameters(project, meta, []types.ActionParameter{
			{Name: "target", Type: types.ParamString, Value: "greeting", Source: types.SourceProjectParameter},
		})
		require.Error(t, err)
	})
}
