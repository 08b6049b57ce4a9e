package types

import "time"

// ParameterType identifies the primitive or reference kind of a setting or
// action parameter.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamInt     ParameterType = "integer"
	ParamDouble  ParameterType = "double"
	ParamBool    ParameterType = "boolean"
	ParamPose    ParameterType = "pose"
	ParamJoints  ParameterType = "joints"
	ParamEnum    ParameterType = "enum"
	ParamRelPath ParameterType = "relative_pose"
)

// SettingMeta describes one entry of an ObjectType's settings schema.
type SettingMeta struct {
	Name         string        `json:"name"`
	Type         ParameterType `json:"type"`
	Description  string        `json:"description,omitempty"`
	DefaultValue string        `json:"defaultValue,omitempty"`
	Extra        string        `json:"extra,omitempty"` // e.g. enum allowed values, JSON-encoded
}

// ActionParameterMeta describes one formal parameter of an action method,
// as declared by the type's manifest (spec.md §9: a Build-time generator
// emits this manifest instead of ARServer introspecting source at runtime).
type ActionParameterMeta struct {
	Name string        `json:"name"`
	Type ParameterType `json:"type"`
}

// ActionMeta describes a single action (method) exposed by an ObjectType.
type ActionMeta struct {
	Name        string                `json:"name"`
	Parameters  []ActionParameterMeta `json:"parameters"`
	Returns     []ParameterType       `json:"returns,omitempty"`
	Description string                `json:"description,omitempty"`
	Disabled    bool                  `json:"disabled,omitempty"`
	Problem     string                `json:"problem,omitempty"`
	// Origins is the most recent ancestor ObjectType id that declared this
	// action, populated during inheritance propagation (spec.md §4.1).
	Origins string `json:"origins,omitempty"`
}

// ObjectType is a class of physical or virtual device with a settings
// schema and an action catalog (spec.md §3).
type ObjectType struct {
	ID          string                `json:"id"`
	Base        string                `json:"base,omitempty"`
	Description string                `json:"description,omitempty"`
	BuiltIn     bool                  `json:"builtIn"`
	Disabled    bool                  `json:"disabled"`
	Problem     string                `json:"problem,omitempty"`
	Abstract    bool                  `json:"abstract"`
	HasPose     bool                  `json:"hasPose"`
	Source      string                `json:"source"`
	Model       string                `json:"model,omitempty"`
	// FocusPoints is the mesh model's ordered list of anchor poses that the
	// object-aiming flow records a robot pose against, one at a time
	// (spec.md §4.1; grounded on the original Mesh.focus_points field).
	// Empty/nil for object types with no mesh model.
	FocusPoints []Pose                `json:"focusPoints,omitempty"`
	Settings    []SettingMeta         `json:"settings"`
	Actions     map[string]ActionMeta `json:"actions"`
	Created     time.Time             `json:"created"`
	Modified    time.Time             `json:"modified"`
	// SourceHash is used by the catalog refresh to detect changed source and
	// avoid recompiling types whose source is unchanged (spec.md §4.1).
	SourceHash string `json:"sourceHash,omitempty"`
}

// ListingEntry is the coarse summary the catalog cache's listing map holds
// for every persistable entity (spec.md §3, CatalogCache entry).
type ListingEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// EntityID implements catalog.Entity.
func (o ObjectType) EntityID() string { return o.ID }

// EntityModified implements catalog.Entity.
func (o ObjectType) EntityModified() time.Time { return o.Modified }
