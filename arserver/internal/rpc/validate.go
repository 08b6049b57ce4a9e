package rpc

import (
	"fmt"
	"regexp"

	"github.com/arcor2/arcor2-core/shared/types"
)

// identifierPattern matches a valid snake_case programming identifier
// (spec.md §3: "names ... are valid programming identifiers (snake_case,
// not a reserved word)"). Grounded on the original
// arcor2.helpers.is_valid_identifier, which additionally round-trips the
// value through its own camelCase<->snake_case conversion; requiring the
// pattern below is equivalent for any string that is already snake_case,
// which is the only shape is_valid_identifier accepts.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// reservedWords mirrors Python's keyword list, since generated scripts are
// Python and a name colliding with a keyword would not compile
// (arcor2.helpers.is_valid_identifier: "not keyword.iskeyword(value)").
var reservedWords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {},
	"async": {}, "await": {}, "break": {}, "class": {}, "continue": {},
	"def": {}, "del": {}, "elif": {}, "else": {}, "except": {}, "finally": {},
	"for": {}, "from": {}, "global": {}, "if": {}, "import": {}, "in": {},
	"is": {}, "lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {},
	"raise": {}, "return": {}, "try": {}, "while": {}, "with": {}, "yield": {},
}

// validateIdentifier enforces spec.md §3's "valid programming identifiers
// (snake_case, not a reserved word)" invariant.
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%q is not a valid snake_case identifier", name)
	}
	if _, reserved := reservedWords[name]; reserved {
		return fmt.Errorf("%q is a reserved word", name)
	}
	return nil
}

// rejectDuplicateName enforces spec.md §8 property 4 ("Name uniqueness"):
// any RPC introducing a duplicate name within its collection fails with no
// state change.
func rejectDuplicateName(existing []string, candidate string) error {
	for _, name := range existing {
		if name == candidate {
			return fmt.Errorf("name %q already exists in this collection", candidate)
		}
	}
	return nil
}

// sceneObjectNames returns every SceneObject.Name currently in scene.
func sceneObjectNames(scene types.Scene) []string {
	names := make([]string, 0, len(scene.Objects))
	for _, o := range scene.Objects {
		names = append(names, o.Name)
	}
	return names
}

// actionPointSiblingNames returns the names of every ActionPoint sharing
// parent within project (spec.md §8 property 4: "siblings of an action
// point").
func actionPointSiblingNames(project types.Project, parent string) []string {
	names := make([]string, 0, len(project.ActionPoints))
	for _, ap := range project.ActionPoints {
		if ap.Parent == parent {
			names = append(names, ap.Name)
		}
	}
	return names
}

// actionSiblingNames returns the names of every Action already attached to
// ap.
func actionSiblingNames(ap *types.ActionPoint) []string {
	names := make([]string, 0, len(ap.Actions))
	for _, a := range ap.Actions {
		names = append(names, a.Name)
	}
	return names
}
