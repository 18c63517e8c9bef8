// Package canonicalize provides deterministic, byte-stable serialization of
// arbitrary JSON-like Go values. It is the sole hashing substrate for the
// evidence packager and the sole equality substrate for tool-argument
// comparisons: two semantically equal values MUST canonicalize to identical
// bytes regardless of how they were constructed (map literal, JSON
// round-trip, struct marshal).
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
)

// Canonicalize returns the canonical JSON string representation of v.
//
//  1. Object keys are sorted lexicographically by Unicode code point.
//  2. HTML escaping is disabled.
//  3. nil / untyped nil maps to "null".
//  4. big.Int and *big.Int render as their decimal string form.
//  5. func and chan values render as a type placeholder string.
//  6. Cyclic references through maps and slices (detected via their data
//     pointer identity) render as the sentinel string "[Circular]" on
//     re-entry. Structs are encoded through encoding/json, so a cycle that
//     runs through struct pointers renders the struct as a type placeholder
//     string, not as "[Circular]".
//
// The output has no surrounding whitespace and is safe to hash directly.
func Canonicalize(v interface{}) string {
	var buf bytes.Buffer
	enc := newEncoder(&buf)
	enc.encode(v)
	return buf.String()
}

// Bytes is a convenience wrapper returning the canonical form as []byte.
func Bytes(v interface{}) []byte {
	return []byte(Canonicalize(v))
}

type encoder struct {
	buf     *bytes.Buffer
	visited map[uintptr]bool
}

func newEncoder(buf *bytes.Buffer) *encoder {
	return &encoder{buf: buf, visited: make(map[uintptr]bool)}
}

func (e *encoder) encode(v interface{}) {
	if v == nil {
		e.buf.WriteString("null")
		return
	}

	switch t := v.(type) {
	case json.RawMessage:
		e.encodeRaw(t)
		return
	case *big.Int:
		if t == nil {
			e.buf.WriteString("null")
			return
		}
		e.encodeString(t.String())
		return
	case big.Int:
		e.encodeString(t.String())
		return
	case json.Number:
		e.encodeNumberLiteral(string(t))
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case reflect.String:
		e.encodeString(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fmt.Fprintf(e.buf, "%d", rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		fmt.Fprintf(e.buf, "%d", rv.Uint())
	case reflect.Float32, reflect.Float64:
		e.encodeFloat(rv.Float())
	case reflect.Map:
		e.encodeMap(rv)
	case reflect.Slice, reflect.Array:
		e.encodeSlice(rv)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		e.encode(rv.Elem().Interface())
	case reflect.Struct:
		e.encodeStruct(v)
	case reflect.Func, reflect.Chan:
		e.encodeString(fmt.Sprintf("[%s]", rv.Kind().String()))
	case reflect.UnsafePointer:
		e.encodeString("[UnsafePointer]")
	default:
		// Best effort: round-trip through encoding/json to flatten unknown types
		// (e.g. complex struct trees with custom MarshalJSON) into generic form.
		data, err := json.Marshal(v)
		if err != nil {
			e.encodeString(fmt.Sprintf("[%T]", v))
			return
		}
		var generic interface{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil {
			e.encodeString(fmt.Sprintf("[%T]", v))
			return
		}
		e.encode(generic)
	}
}

// encodeRaw re-parses a json.RawMessage so keys are re-sorted canonically.
func (e *encoder) encodeRaw(raw json.RawMessage) {
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		e.buf.WriteString("null")
		return
	}
	e.encode(generic)
}

func (e *encoder) encodeStruct(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		e.encodeString(fmt.Sprintf("[%T]", v))
		return
	}
	e.encodeRaw(data)
}

func (e *encoder) encodeString(s string) {
	// encoding/json escapes correctly; we only need to disable HTML escaping
	// and trim the trailing newline Encode() appends.
	var tmp bytes.Buffer
	jenc := json.NewEncoder(&tmp)
	jenc.SetEscapeHTML(false)
	_ = jenc.Encode(s)
	e.buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
}

func (e *encoder) encodeNumberLiteral(s string) {
	if s == "" {
		e.buf.WriteString("0")
		return
	}
	e.buf.WriteString(s)
}

func (e *encoder) encodeFloat(f float64) {
	if f == float64(int64(f)) && !isNegZero(f) {
		fmt.Fprintf(e.buf, "%d", int64(f))
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		e.buf.WriteString("0")
		return
	}
	e.buf.Write(data)
}

func isNegZero(f float64) bool {
	return f == 0 && fmt.Sprintf("%f", f)[0] == '-'
}

func (e *encoder) encodeMap(rv reflect.Value) {
	if rv.Kind() == reflect.Map {
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		if id, cyclic := e.enter(rv); cyclic {
			e.encodeString("[Circular]")
			return
		} else {
			defer e.leave(id)
		}
	}

	keys := rv.MapKeys()
	strKeys := make([]string, len(keys))
	byStr := make(map[string]reflect.Value, len(keys))
	for i, k := range keys {
		s := fmt.Sprintf("%v", k.Interface())
		strKeys[i] = s
		byStr[s] = k
	}
	sort.Strings(strKeys)

	e.buf.WriteByte('{')
	for i, ks := range strKeys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.encodeString(ks)
		e.buf.WriteByte(':')
		e.encode(rv.MapIndex(byStr[ks]).Interface())
	}
	e.buf.WriteByte('}')
}

func (e *encoder) encodeSlice(rv reflect.Value) {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		if id, cyclic := e.enter(rv); cyclic {
			e.encodeString("[Circular]")
			return
		} else {
			defer e.leave(id)
		}
	}

	e.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.encode(rv.Index(i).Interface())
	}
	e.buf.WriteByte(']')
}

// enter registers the data pointer of a map/slice as visited, returning
// (pointer, true) if it was already on the active encoding stack (a cycle).
func (e *encoder) enter(rv reflect.Value) (uintptr, bool) {
	ptr := rv.Pointer()
	if e.visited[ptr] {
		return ptr, true
	}
	e.visited[ptr] = true
	return ptr, false
}

func (e *encoder) leave(ptr uintptr) {
	delete(e.visited, ptr)
}

// ToAnySlice widens a typed slice to []interface{} so Canonicalize can walk
// it through the same reflect.Slice path as a decoded any.
func ToAnySlice[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
