package schema

// TypeDef is the declarative form of one type, as read from CUE.
type TypeDef struct {
	Name        string         `json:"name"`
	Abstract    bool           `json:"abstract,omitempty"`
	Association bool           `json:"association,omitempty"`
	Extends     []string       `json:"extends,omitempty"`
	Union       []string       `json:"union,omitempty"` // member names; non-empty for union types
	Attributes  []AttributeDef `json:"attributes,omitempty"`
	Line        int            `json:"-"`
}

// AttributeDef is the declarative form of one attribute.
type AttributeDef struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`              // "string", "int", "bool" or "reference"
	Target       string `json:"target,omitempty"`  // reference target type
	History      string `json:"history,omitempty"` // "current", "historic" or "mixed"
	BranchGlobal bool   `json:"branch_global,omitempty"`
	Line         int    `json:"-"`
}

// IsUnion reports whether the definition declares a union type.
func (d TypeDef) IsUnion() bool {
	return d.Union != nil
}

// describe returns the canonical description used for the schema
// fingerprint.
func describe(defs []TypeDef) map[string]any {
	types := make([]any, 0, len(defs))
	for _, d := range defs {
		attrs := make([]any, 0, len(d.Attributes))
		for _, a := range d.Attributes {
			attrs = append(attrs, map[string]any{
				"name":          a.Name,
				"kind":          a.Kind,
				"target":        a.Target,
				"history":       a.History,
				"branch_global": a.BranchGlobal,
			})
		}
		types = append(types, map[string]any{
			"name":        d.Name,
			"abstract":    d.Abstract,
			"association": d.Association,
			"extends":     d.Extends,
			"union":       d.Union,
			"attributes":  attrs,
		})
	}
	return map[string]any{"types": types}
}
