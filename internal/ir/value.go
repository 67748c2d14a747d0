package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface over the values a query can produce or
// consume. Only Null, String, Int, Bool, Item and Tuple implement it.
// There is no float value.
type Value interface {
	value() // Sealed
	Kind() Kind
}

// Kind classifies a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindItem
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindItem:
		return "item"
	case KindTuple:
		return "tuple"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Null is the absent value.
type Null struct{}

func (Null) value()     {}
func (Null) Kind() Kind { return KindNull }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a text value.
type String string

func (String) value()     {}
func (String) Kind() Kind { return KindString }

// Int is an integer value.
type Int int64

func (Int) value()     {}
func (Int) Kind() Kind { return KindInt }

// Bool is a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

// Item is an object reference bound to a revision.
type Item ObjectKey

func (Item) value()     {}
func (Item) Kind() Kind { return KindItem }

// Key returns the item as an ObjectKey.
func (i Item) Key() ObjectKey { return ObjectKey(i) }

// MarshalJSON implements json.Marshaler for Item.
func (i Item) MarshalJSON() ([]byte, error) {
	return marshalJSON(ObjectKey(i))
}

// Tuple is an ordered combination of values, produced by cross products.
type Tuple []Value

func (Tuple) value()     {}
func (Tuple) Kind() Kind { return KindTuple }

// MarshalJSON implements json.Marshaler for Tuple.
func (t Tuple) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("tuple[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// NewItem creates a live Item value.
func NewItem(id ObjectBranchID) Item {
	return Item(id.At(CurrentRevision))
}

// IsNull reports whether v is absent. A nil Value counts as Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalJSON(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Item:
		return val.MarshalJSON()
	case Tuple:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// marshalJSON is json.Marshal without HTML escaping, matching
// MarshalCanonical.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// UnmarshalValue decodes a JSON scalar into a Value. Objects with the keys
// of an ObjectKey decode to an Item, arrays to a Tuple. Floats are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromJSON(raw)
}

// FromJSON converts a value decoded with json.Decoder.UseNumber.
func FromJSON(v any) (Value, error) {
	switch val := v.(type) {
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not supported: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return Int(n), nil
	case []any:
		t := make(Tuple, len(val))
		for i, elem := range val {
			e, err := FromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("tuple[%d]: %w", i, err)
			}
			t[i] = e
		}
		return t, nil
	case map[string]any:
		return itemFromMap(val)
	default:
		return FromGo(v)
	}
}

// FromGo converts plain Go values: database/sql scan results and YAML
// decoded scalars.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return String(val), nil
	case int64:
		return Int(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > uint64(1<<63-1) {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not supported: %v", val)
	case map[string]any:
		return itemFromMap(val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func itemFromMap(m map[string]any) (Value, error) {
	key := ObjectKey{Branch: TrunkBranch, Revision: CurrentRevision}
	for k, raw := range m {
		switch k {
		case "type":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("item type must be a string, got %T", raw)
			}
			key.Type = s
		case "id":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("item id must be a string, got %T", raw)
			}
			key.ID = s
		case "branch", "revision":
			n, err := FromJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", k, err)
			}
			i, ok := n.(Int)
			if !ok {
				return nil, fmt.Errorf("item %s must be an integer, got %s", k, n.Kind())
			}
			if k == "branch" {
				key.Branch = BranchID(i)
			} else {
				key.Revision = int64(i)
			}
		default:
			return nil, fmt.Errorf("unknown item field %q", k)
		}
	}
	if key.Type == "" || key.ID == "" {
		return nil, fmt.Errorf("item requires type and id")
	}
	return Item(key), nil
}

// Format renders a value in query syntax: strings quoted, items as
// item("Type", "id", branch).
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Item:
		s := fmt.Sprintf("item(%s, %s, %d", strconv.Quote(val.Type), strconv.Quote(val.ID), val.Branch)
		if val.Revision != CurrentRevision {
			s += fmt.Sprintf(", %d", val.Revision)
		}
		return s + ")"
	case Tuple:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Format(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// DriverValue converts a scalar to the form bound as a SQL parameter.
// Booleans are stored as 0 and 1.
func DriverValue(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("%s value cannot be bound as a parameter", v.Kind())
	}
}

// FromColumn decodes a stored scalar of the given kind. Integer columns
// hold booleans as 0 and 1.
func FromColumn(kind Kind, raw any) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch kind {
	case KindBool:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("bool column holds %T", raw)
		}
		return Bool(n != 0), nil
	case KindInt:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("int column holds %T", raw)
		}
		return Int(n), nil
	case KindString:
		switch s := raw.(type) {
		case string:
			return String(s), nil
		case []byte:
			return String(s), nil
		}
		return nil, fmt.Errorf("string column holds %T", raw)
	default:
		return nil, fmt.Errorf("%s values are not stored in a single column", kind)
	}
}
