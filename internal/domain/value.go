package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Kind enumerates the closed set of shapes a metric value can take.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindMapping
	KindSequence
	// KindUnknown holds a Go value with no JSON representation.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a nested metric value. The zero Value is null.
type Value struct {
	kind    Kind
	number  json.Number
	text    string
	boolean bool
	fields  map[string]Value
	items   []Value
	raw     any
}

func NullValue() Value { return Value{} }

func NumberValue(n json.Number) Value { return Value{kind: KindNumber, number: n} }

func StringValue(s string) Value { return Value{kind: KindString, text: s} }

func BoolValue(b bool) Value { return Value{kind: KindBool, boolean: b} }

// MappingValue takes ownership of fields.
func MappingValue(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMapping, fields: fields}
}

// SequenceValue takes ownership of items.
func SequenceValue(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, items: items}
}

func UnknownValue(raw any) Value { return Value{kind: KindUnknown, raw: raw} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Number() json.Number { return v.number }

func (v Value) Str() string { return v.text }

func (v Value) Bool() bool { return v.boolean }

// Fields returns the entries of a mapping. Callers must not mutate the result.
func (v Value) Fields() map[string]Value { return v.fields }

// Items returns the elements of a sequence. Callers must not mutate the result.
func (v Value) Items() []Value { return v.items }

func (v Value) Raw() any { return v.raw }

func (v Value) IsContainer() bool {
	return v.kind == KindMapping || v.kind == KindSequence
}

// Keys returns mapping keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy sharing no containers with v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMapping:
		fields := make(map[string]Value, len(v.fields))
		for k, child := range v.fields {
			fields[k] = child.Clone()
		}
		return MappingValue(fields)
	case KindSequence:
		items := make([]Value, len(v.items))
		for i, child := range v.items {
			items[i] = child.Clone()
		}
		return SequenceValue(items)
	default:
		return v
	}
}

// Equal reports structural equality. Numbers compare by value so that
// stores which normalise numeric text still compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		if v.number == o.number {
			return true
		}
		a, errA := v.number.Float64()
		b, errB := o.number.Float64()
		return errA == nil && errB == nil && a == b
	case KindString:
		return v.text == o.text
	case KindBool:
		return v.boolean == o.boolean
	case KindMapping:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for k, child := range v.fields {
			other, ok := o.fields[k]
			if !ok || !child.Equal(other) {
				return false
			}
		}
		return true
	case KindSequence:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(v.raw, o.raw)
	}
}

// Interface converts v back to plain Go values: nil, json.Number, string,
// bool, map[string]any and []any. Unknown leaves are returned as-is.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.number
	case KindString:
		return v.text
	case KindBool:
		return v.boolean
	case KindMapping:
		out := make(map[string]any, len(v.fields))
		for k, child := range v.fields {
			out[k] = child.Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.items))
		for i, child := range v.items {
			out[i] = child.Interface()
		}
		return out
	case KindUnknown:
		return v.raw
	default:
		return nil
	}
}

// UnsupportedValueError is returned when encoding a Value that still holds
// an unknown leaf.
type UnsupportedValueError struct {
	Path   string
	GoType string
}

func (e *UnsupportedValueError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unsupported value of type %s", e.GoType)
	}
	return fmt.Sprintf("unsupported value of type %s at %s", e.GoType, e.Path)
}

func (v Value) MarshalJSON() ([]byte, error) {
	tree, err := v.jsonTree("")
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func (v Value) jsonTree(path string) (any, error) {
	switch v.kind {
	case KindMapping:
		out := make(map[string]any, len(v.fields))
		for k, child := range v.fields {
			sub, err := child.jsonTree(JoinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case KindSequence:
		out := make([]any, len(v.items))
		for i, child := range v.items {
			sub, err := child.jsonTree(IndexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case KindUnknown:
		return nil, &UnsupportedValueError{Path: path, GoType: TypeName(v.raw)}
	default:
		return v.Interface(), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny classifies an arbitrary Go value. Maps with string keys become
// mappings, slices and arrays become sequences, pointers are followed, and
// anything without a JSON shape (including NaN and infinities) is unknown.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t.Clone()
	case bool:
		return BoolValue(t)
	case string:
		return StringValue(t)
	case json.Number:
		if !isJSONNumber(string(t)) {
			return UnknownValue(t)
		}
		return NumberValue(t)
	case int:
		return NumberValue(json.Number(strconv.FormatInt(int64(t), 10)))
	case int8:
		return NumberValue(json.Number(strconv.FormatInt(int64(t), 10)))
	case int16:
		return NumberValue(json.Number(strconv.FormatInt(int64(t), 10)))
	case int32:
		return NumberValue(json.Number(strconv.FormatInt(int64(t), 10)))
	case int64:
		return NumberValue(json.Number(strconv.FormatInt(t, 10)))
	case uint:
		return NumberValue(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint8:
		return NumberValue(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint16:
		return NumberValue(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint32:
		return NumberValue(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint64:
		return NumberValue(json.Number(strconv.FormatUint(t, 10)))
	case float32:
		return floatValue(float64(t), 32, x)
	case float64:
		return floatValue(t, 64, x)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, child := range t {
			fields[k] = FromAny(child)
		}
		return MappingValue(fields)
	case Metadata:
		return FromAny(map[string]any(t))
	case []any:
		items := make([]Value, len(t))
		for i, child := range t {
			items[i] = FromAny(child)
		}
		return SequenceValue(items)
	}
	return fromReflect(reflect.ValueOf(x), x)
}

// isJSONNumber reports whether s is a number literal in JSON's grammar.
// Literals beyond float64 range are valid and stay as text.
func isJSONNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	switch {
	case i < len(s) && s[i] == '0':
		i++
	case i < len(s) && s[i] >= '1' && s[i] <= '9':
		i = skipDigits(s, i)
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		j := skipDigits(s, i+1)
		if j == i+1 {
			return false
		}
		i = j
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		j := skipDigits(s, i)
		if j == i {
			return false
		}
		i = j
	}
	return i == len(s)
}

func skipDigits(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func floatValue(f float64, bits int, orig any) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return UnknownValue(orig)
	}
	return NumberValue(json.Number(strconv.FormatFloat(f, 'g', -1, bits)))
}

func fromReflect(rv reflect.Value, orig any) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NullValue()
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return UnknownValue(orig)
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[iter.Key().String()] = FromAny(iter.Value().Interface())
		}
		return MappingValue(fields)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return SequenceValue(nil)
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return SequenceValue(items)
	case reflect.Bool:
		return BoolValue(rv.Bool())
	case reflect.String:
		return StringValue(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(json.Number(strconv.FormatInt(rv.Int(), 10)))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NumberValue(json.Number(strconv.FormatUint(rv.Uint(), 10)))
	case reflect.Float32:
		return floatValue(rv.Float(), 32, orig)
	case reflect.Float64:
		return floatValue(rv.Float(), 64, orig)
	default:
		return UnknownValue(orig)
	}
}

// TypeName describes the Go type of x for diagnostics.
func TypeName(x any) string {
	if x == nil {
		return "nil"
	}
	return reflect.TypeOf(x).String()
}

// JoinPath appends a mapping key to a dotted path.
func JoinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// IndexPath appends a sequence index to a path.
func IndexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
