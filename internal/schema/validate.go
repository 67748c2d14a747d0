package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation error codes (E200-E219)
const (
	ErrInvalidTypeName      = "E200" // type name is not an identifier
	ErrDuplicateType        = "E201" // type declared twice (case insensitive)
	ErrReservedTypeName     = "E202" // type name collides with storage tables
	ErrUnknownParent        = "E203" // extends names an unknown type
	ErrInheritanceCycle     = "E204" // type transitively extends itself
	ErrInvalidParent        = "E205" // extends names a union, or mixes classes and associations
	ErrInvalidAttributeName = "E206" // attribute name is not an identifier
	ErrReservedAttribute    = "E207" // attribute name collides with storage columns
	ErrDuplicateAttribute   = "E208" // attribute declared twice along the hierarchy
	ErrInvalidAttributeKind = "E209" // unknown attribute kind
	ErrFloatKindForbidden   = "E210" // float kinds are not supported
	ErrMissingTarget        = "E211" // reference without target
	ErrUnknownTarget        = "E212" // reference target is not a type
	ErrInvalidHistoryType   = "E213" // unknown history type
	ErrReferenceOnly        = "E214" // history or branch locality on a primitive attribute
	ErrAssociationEndpoints = "E215" // association lacks source/dest references
	ErrEmptyUnion           = "E216" // union without members
	ErrUnknownUnionMember   = "E217" // union member is not a type
	ErrUnionDeclaration     = "E218" // union declares attributes, parents or flags
	ErrUnionCycle           = "E219" // union contains itself
)

// Association endpoint attribute names.
const (
	SourceAttribute = "source"
	DestAttribute   = "dest"
)

// ValidationError represents a type system definition error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks a set of type definitions.
// Returns all errors found (does not fail-fast).
func Validate(defs []TypeDef) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]*TypeDef, len(defs))
	folded := make(map[string]string, len(defs))
	for i := range defs {
		d := &defs[i]
		field := fmt.Sprintf("types.%s", d.Name)

		if !identifierPattern.MatchString(d.Name) || strings.Contains(d.Name, "__") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("type name %q must be an identifier without \"__\"", d.Name),
				Code:    ErrInvalidTypeName,
				Line:    d.Line,
			})
		}
		if strings.EqualFold(d.Name, RootTypeName) || strings.HasPrefix(strings.ToUpper(d.Name), "KB_") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("type name %q is reserved", d.Name),
				Code:    ErrReservedTypeName,
				Line:    d.Line,
			})
		}
		key := strings.ToLower(d.Name)
		if prev, ok := folded[key]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("type %q is already declared as %q", d.Name, prev),
				Code:    ErrDuplicateType,
				Line:    d.Line,
			})
			continue
		}
		folded[key] = d.Name
		byName[d.Name] = d
	}

	for i := range defs {
		d := &defs[i]
		if d.IsUnion() {
			errs = append(errs, validateUnion(d, byName)...)
			continue
		}
		errs = append(errs, validateParents(d, byName)...)
		errs = append(errs, validateAttributes(d, byName)...)
	}

	for _, cycle := range findInheritanceCycles(defs) {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("types.%s.extends", cycle[0]),
			Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(cycle, " → ")),
			Code:    ErrInheritanceCycle,
			Line:    byName[cycle[0]].Line,
		})
	}

	for i := range defs {
		d := &defs[i]
		if d.Association && !d.IsUnion() {
			errs = append(errs, validateEndpoints(d, byName)...)
		}
	}

	return errs
}

func validateUnion(d *TypeDef, byName map[string]*TypeDef) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("types.%s.union", d.Name)

	if len(d.Union) == 0 {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "union requires at least one member",
			Code:    ErrEmptyUnion,
			Line:    d.Line,
		})
	}
	if len(d.Attributes) > 0 || len(d.Extends) > 0 || d.Association || d.Abstract {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "a union declares members only",
			Code:    ErrUnionDeclaration,
			Line:    d.Line,
		})
	}
	for _, m := range d.Union {
		if _, ok := byName[m]; !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown union member %q", m),
				Code:    ErrUnknownUnionMember,
				Line:    d.Line,
			})
		}
	}
	if unionContains(d.Name, d.Union, byName, map[string]bool{}) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("union %q contains itself", d.Name),
			Code:    ErrUnionCycle,
			Line:    d.Line,
		})
	}
	return errs
}

func unionContains(name string, members []string, byName map[string]*TypeDef, seen map[string]bool) bool {
	for _, m := range members {
		if m == name {
			return true
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		if md, ok := byName[m]; ok && md.IsUnion() && unionContains(name, md.Union, byName, seen) {
			return true
		}
	}
	return false
}

func validateParents(d *TypeDef, byName map[string]*TypeDef) []ValidationError {
	var errs []ValidationError
	for _, p := range d.Extends {
		field := fmt.Sprintf("types.%s.extends", d.Name)
		if p == RootTypeName {
			continue
		}
		pd, ok := byName[p]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown parent type %q", p),
				Code:    ErrUnknownParent,
				Line:    d.Line,
			})
			continue
		}
		if pd.IsUnion() || pd.Association != d.Association {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s %q cannot extend %q", kindName(d), d.Name, p),
				Code:    ErrInvalidParent,
				Line:    d.Line,
			})
		}
	}
	return errs
}

func kindName(d *TypeDef) string {
	switch {
	case d.IsUnion():
		return "union"
	case d.Association:
		return "association"
	default:
		return "class"
	}
}

func validateAttributes(d *TypeDef, byName map[string]*TypeDef) []ValidationError {
	var errs []ValidationError
	inherited := inheritedAttributes(d, byName)
	seen := make(map[string]bool)

	for _, a := range d.Attributes {
		field := fmt.Sprintf("types.%s.attributes.%s", d.Name, a.Name)
		line := a.Line
		if line == 0 {
			line = d.Line
		}

		if !identifierPattern.MatchString(a.Name) || strings.Contains(a.Name, "__") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("attribute name %q must be an identifier without \"__\"", a.Name),
				Code:    ErrInvalidAttributeName,
				Line:    line,
			})
		}
		if isReservedColumn(a.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("attribute name %q is reserved", a.Name),
				Code:    ErrReservedAttribute,
				Line:    line,
			})
		}
		key := strings.ToLower(a.Name)
		if seen[key] || inherited[key] != "" {
			owner := d.Name
			if inherited[key] != "" {
				owner = inherited[key]
			}
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("attribute %q is already declared by %q", a.Name, owner),
				Code:    ErrDuplicateAttribute,
				Line:    line,
			})
		}
		seen[key] = true

		kind, ok := ParseKind(a.Kind)
		switch {
		case isFloatKind(a.Kind):
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("float kind forbidden for attribute %q, use int instead", a.Name),
				Code:    ErrFloatKindForbidden,
				Line:    line,
			})
			continue
		case !ok:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid kind %q, must be \"string\", \"int\", \"bool\" or \"reference\"", a.Kind),
				Code:    ErrInvalidAttributeKind,
				Line:    line,
			})
			continue
		}

		if _, ok := ParseHistoryType(a.History); !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid history %q, must be \"current\", \"historic\" or \"mixed\"", a.History),
				Code:    ErrInvalidHistoryType,
				Line:    line,
			})
		}

		if kind != KindReference {
			if a.Target != "" || a.History != "" || a.BranchGlobal {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "target, history and branchGlobal apply to references only",
					Code:    ErrReferenceOnly,
					Line:    line,
				})
			}
			continue
		}

		switch {
		case a.Target == "":
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "reference requires a target type",
				Code:    ErrMissingTarget,
				Line:    line,
			})
		case a.Target == RootTypeName:
		default:
			if _, ok := byName[a.Target]; !ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("unknown target type %q", a.Target),
					Code:    ErrUnknownTarget,
					Line:    line,
				})
			}
		}
	}
	return errs
}

// inheritedAttributes maps lower case attribute names declared by any
// supertype of d to their declaring type.
func inheritedAttributes(d *TypeDef, byName map[string]*TypeDef) map[string]string {
	result := make(map[string]string)
	visited := map[string]bool{d.Name: true}
	var walk func(names []string)
	walk = func(names []string) {
		for _, n := range names {
			if visited[n] {
				continue
			}
			visited[n] = true
			pd, ok := byName[n]
			if !ok {
				continue
			}
			for _, a := range pd.Attributes {
				result[strings.ToLower(a.Name)] = pd.Name
			}
			walk(pd.Extends)
		}
	}
	walk(d.Extends)
	return result
}

func validateEndpoints(d *TypeDef, byName map[string]*TypeDef) []ValidationError {
	var errs []ValidationError
	for _, end := range []string{SourceAttribute, DestAttribute} {
		a, ok := findAttributeDef(d, end, byName, map[string]bool{})
		if ok && a.Kind == "reference" {
			continue
		}
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("types.%s.attributes", d.Name),
			Message: fmt.Sprintf("association %q requires a reference attribute %q", d.Name, end),
			Code:    ErrAssociationEndpoints,
			Line:    d.Line,
		})
	}
	return errs
}

func findAttributeDef(d *TypeDef, name string, byName map[string]*TypeDef, visited map[string]bool) (AttributeDef, bool) {
	if visited[d.Name] {
		return AttributeDef{}, false
	}
	visited[d.Name] = true
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	for _, p := range d.Extends {
		if pd, ok := byName[p]; ok {
			if a, ok := findAttributeDef(pd, name, byName, visited); ok {
				return a, true
			}
		}
	}
	return AttributeDef{}, false
}

// isFloatKind checks if a kind string represents a float type.
func isFloatKind(k string) bool {
	switch k {
	case "float", "float32", "float64", "number", "double":
		return true
	}
	return false
}
