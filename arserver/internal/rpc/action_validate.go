package rpc

import (
	"fmt"
	"strings"

	"github.com/arcor2/arcor2-core/arserver/internal/objecttype"
	"github.com/arcor2/arcor2-core/shared/types"
)

// resolveActionType resolves an Action.Type of the form "object/method"
// against the scene object it names and the object's (possibly inherited)
// ObjectType action catalog (spec.md §3: "an Action's type resolves to an
// ObjectType id present in its scene and a method on that type").
func resolveActionType(graph *objecttype.Graph, scene types.Scene, actionType string) (types.ActionMeta, error) {
	objectID, method, ok := strings.Cut(actionType, "/")
	if !ok {
		return types.ActionMeta{}, fmt.Errorf("action type %q must be encoded as object/method", actionType)
	}

	obj := scene.FindObject(objectID)
	if obj == nil {
		return types.ActionMeta{}, fmt.Errorf("action type %q: object %q is not present in the open scene", actionType, objectID)
	}

	meta, ok := graph.ResolveAction(obj.Type, method)
	if !ok {
		return types.ActionMeta{}, fmt.Errorf("action type %q: object type %q has no action %q", actionType, obj.Type, method)
	}
	return meta, nil
}

// validateActionParameters checks each parameter's declared type against
// the resolved action's metadata, and resolves link/projectParameter
// references (spec.md §3: "each parameter's declared type matches ...;
// link references point to an action whose flow produces the referenced
// output; projectParameter references resolve to a project-level parameter
// of matching type").
func validateActionParameters(project types.Project, meta types.ActionMeta, params []types.ActionParameter) error {
	declared := make(map[string]types.ParameterType, len(meta.Parameters))
	for _, p := range meta.Parameters {
		declared[p.Name] = p.Type
	}

	for _, p := range params {
		want, ok := declared[p.Name]
		if !ok {
			return fmt.Errorf("parameter %q is not declared by action %q", p.Name, meta.Name)
		}
		if p.Type != want {
			return fmt.Errorf("parameter %q: declared type %q does not match action %q's parameter type %q", p.Name, p.Type, meta.Name, want)
		}

		switch p.Source {
		case types.SourceLink:
			if err := validateLinkReference(project, p.Value); err != nil {
				return err
			}
		case types.SourceProjectParameter:
			if err := validateProjectParameterReference(project, p.Value, want); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateLinkReference resolves a "link" parameter value, encoded as
// "<action_id>/<output_name>", against the flow outputs already declared
// in the project.
func validateLinkReference(project types.Project, value string) error {
	actionID, output, ok := strings.Cut(value, "/")
	if !ok {
		return fmt.Errorf("link reference %q must be encoded as action_id/output_name", value)
	}

	action, _ := project.FindAction(actionID)
	if action == nil {
		return fmt.Errorf("link reference %q: action %q not found", value, actionID)
	}
	for _, flow := range action.Flows {
		for _, out := range flow.Outputs {
			if out == output {
				return nil
			}
		}
	}
	return fmt.Errorf("link reference %q: action %q has no flow output %q", value, actionID, output)
}

// validateProjectParameterReference resolves a "projectParameter"
// parameter value against the project's top-level parameters, by id or
// name, checking the declared type matches.
func validateProjectParameterReference(project types.Project, value string, want types.ParameterType) error {
	for _, pp := range project.Parameters {
		if pp.ID == value || pp.Name == value {
			if pp.Type != want {
				return fmt.Errorf("project parameter %q has type %q, action parameter declares %q", value, pp.Type, want)
			}
			return nil
		}
	}
	return fmt.Errorf("project parameter reference %q not found", value)
}
