// Package toolresponse decodes raw query-tool results into a tagged union so
// callers can branch on shape without type-asserting arbitrary JSON.
package toolresponse

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Kind is the shape of a decoded tool response.
type Kind int

const (
	KindOther Kind = iota
	KindStructured
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindList:
		return "list"
	default:
		return "other"
	}
}

// Field names inspected on structured responses.
const (
	FieldStatus       = "status"
	FieldErrorDetails = "error_details"
	FieldRows         = "rows"

	StatusError = "ERROR"
)

// wrapperKeys are the keys ADK uses when a tool returns a non-map value.
var wrapperKeys = []string{"output", "result"}

// Response is a decoded tool response.
type Response struct {
	Kind Kind

	fields map[string]any
	items  []any
	raw    any
}

// Decode classifies a tool result. A map holding only an "output" or "result"
// key is unwrapped first, and string payloads carrying JSON are parsed.
func Decode(result map[string]any) Response {
	if result == nil {
		return Response{Kind: KindOther}
	}

	if len(result) == 1 {
		for _, key := range wrapperKeys {
			if inner, ok := result[key]; ok {
				return FromValue(inner)
			}
		}
	}

	return Response{Kind: KindStructured, fields: result, raw: result}
}

// FromValue classifies an arbitrary decoded value.
func FromValue(v any) Response {
	switch val := v.(type) {
	case map[string]any:
		return Response{Kind: KindStructured, fields: val, raw: val}
	case []any:
		return Response{Kind: KindList, items: val, raw: val}
	case []map[string]any:
		items := make([]any, len(val))
		for i, m := range val {
			items[i] = m
		}
		return Response{Kind: KindList, items: items, raw: val}
	case string:
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return FromValue(parsed)
			}
		}
	}
	return Response{Kind: KindOther, raw: v}
}

// Status returns the status field and whether it was present as a string.
func (r Response) Status() (string, bool) {
	if r.Kind != KindStructured {
		return "", false
	}
	s, ok := r.fields[FieldStatus].(string)
	return s, ok
}

// IsErrorStatus reports an embedded "ERROR" status.
func (r Response) IsErrorStatus() bool {
	status, ok := r.Status()
	return ok && status == StatusError
}

// ErrorDetails returns the error_details field if present.
func (r Response) ErrorDetails() (any, bool) {
	if r.Kind != KindStructured {
		return nil, false
	}
	v, ok := r.fields[FieldErrorDetails]
	return v, ok
}

// Rows returns the rows collection and whether the field was present.
// A present rows field holding a falsy value (null, empty collection, empty
// string, zero, false) yields (nil, true). Any other non-list value is
// treated as a single row.
func (r Response) Rows() ([]any, bool) {
	if r.Kind != KindStructured {
		return nil, false
	}
	v, ok := r.fields[FieldRows]
	if !ok {
		return nil, false
	}
	if isFalsy(v) {
		return nil, true
	}
	switch rows := v.(type) {
	case []any:
		return rows, true
	case []map[string]any:
		out := make([]any, len(rows))
		for i, row := range rows {
			out[i] = row
		}
		return out, true
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return []any{v}, true
}

func isFalsy(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// HasEmptyRows reports a rows field that is present with no entries.
func (r Response) HasEmptyRows() bool {
	rows, ok := r.Rows()
	return ok && len(rows) == 0
}

// Items returns the elements of a list response.
func (r Response) Items() []any {
	return r.items
}

// IsEmptyList reports a list response without elements.
func (r Response) IsEmptyList() bool {
	return r.Kind == KindList && len(r.items) == 0
}

// Raw returns the decoded value before classification.
func (r Response) Raw() any {
	return r.raw
}
