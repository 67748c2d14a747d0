package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// LoadFile reads and compiles a CUE type system file.
func LoadFile(path string) (*TypeSystem, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type system: %w", err)
	}
	return CompileCUE(string(src), path)
}

// CompileCUE compiles CUE source declaring a top-level "types" struct:
//
//	types: {
//		A: { abstract: true, attributes: { name: "string" } }
//		B: { extends: "A", attributes: { ref: { kind: "reference", target: "A", history: "historic" } } }
//		AB: { association: true, attributes: { source: { kind: "reference", target: "A" }, dest: { kind: "reference", target: "B" } } }
//		AorB: { union: ["A", "B"] }
//	}
func CompileCUE(src, filename string) (*TypeSystem, error) {
	defs, err := ParseCUE(src, filename)
	if err != nil {
		return nil, err
	}
	return New(defs)
}

// ParseCUE extracts type definitions without validating them.
func ParseCUE(src, filename string) ([]TypeDef, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, &CompileError{
			Field:   "types",
			Message: "types is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []TypeDef
	for iter.Next() {
		def, err := parseType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseType(name string, v cue.Value) (TypeDef, error) {
	def := TypeDef{Name: name, Line: v.Pos().Line()}

	var err error
	if def.Abstract, err = optionalBool(v, "abstract"); err != nil {
		return def, err
	}
	if def.Association, err = optionalBool(v, "association"); err != nil {
		return def, err
	}
	if def.Extends, err = stringOrList(v, "extends"); err != nil {
		return def, err
	}

	unionVal := v.LookupPath(cue.ParsePath("union"))
	if unionVal.Exists() {
		members, err := stringOrList(v, "union")
		if err != nil {
			return def, err
		}
		def.Union = append([]string{}, members...)
	}

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return def, nil
	}
	attrIter, err := attrsVal.Fields()
	if err != nil {
		return def, formatCUEError(err)
	}
	for attrIter.Next() {
		attr, err := parseAttribute(name, attrIter.Label(), attrIter.Value())
		if err != nil {
			return def, err
		}
		def.Attributes = append(def.Attributes, attr)
	}
	return def, nil
}

// parseAttribute accepts the shorthand `name: "string"` or the struct form
// with kind, target, history and branchGlobal.
func parseAttribute(typeName, name string, v cue.Value) (AttributeDef, error) {
	attr := AttributeDef{Name: name, Line: v.Pos().Line()}

	if kind, err := v.String(); err == nil {
		attr.Kind = kind
		return attr, nil
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return attr, &CompileError{
			Field:   fmt.Sprintf("types.%s.attributes.%s", typeName, name),
			Message: "attribute must be a kind string or a struct with kind",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return attr, formatCUEError(err)
	}
	attr.Kind = kind

	if attr.Target, err = optionalString(v, "target"); err != nil {
		return attr, err
	}
	if attr.History, err = optionalString(v, "history"); err != nil {
		return attr, err
	}
	if attr.BranchGlobal, err = optionalBool(v, "branchGlobal"); err != nil {
		return attr, err
	}
	return attr, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringOrList(v cue.Value, field string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	if s, err := f.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var result []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		result = append(result, s)
	}
	return result, nil
}

// CompileError represents a type system source error with position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
