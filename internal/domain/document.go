package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Document is the generic shape exchanged with the persistence gateway and
// the realtime feed: a flat map keyed by JSON field name.
//
// Values keep their semantic type: integers are int64, decimals are float64,
// timestamps are time.Time (UTC), lists are []any and nested objects are
// map[string]any.
type Document map[string]any

// ID returns the "id" field when it is a string.
func (d Document) ID() string {
	s, _ := d["id"].(string)
	return s
}

// Time returns the timestamp stored under key, if any.
func (d Document) Time(key string) (time.Time, bool) {
	t, ok := d[key].(time.Time)
	return t, ok
}

var timeType = reflect.TypeOf(time.Time{})

// ToDocument converts a struct (or pointer to struct) into a Document.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("document: %T is not an object", v)
	}

	fields := jsonFields(reflect.TypeOf(v))
	doc := make(Document, len(m))
	for k, val := range m {
		doc[k] = normalize(val, fields[k])
	}
	return doc, nil
}

// FromDocument decodes doc into out, which must be a pointer to a struct.
// Fields absent from doc keep their current value, so FromDocument also
// applies partial documents.
func FromDocument(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// normalize converts decoder output into typed values, guided by the Go
// type of the destination field when known.
func normalize(v any, t reflect.Type) any {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch x := v.(type) {
	case json.Number:
		if t != nil {
			switch t.Kind() {
			case reflect.Float32, reflect.Float64:
				f, _ := x.Float64()
				return f
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				if i, err := x.Int64(); err == nil {
					return i
				}
			}
		}
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case string:
		if t == timeType {
			if ts, err := time.Parse(time.RFC3339Nano, x); err == nil {
				return ts.UTC()
			}
		}
		return x
	case []any:
		var elem reflect.Type
		if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
			elem = t.Elem()
		}
		for i := range x {
			x[i] = normalize(x[i], elem)
		}
		return x
	case map[string]any:
		var fields map[string]reflect.Type
		if t != nil && t.Kind() == reflect.Struct {
			fields = jsonFields(t)
		}
		for k := range x {
			x[k] = normalize(x[k], fields[k])
		}
		return x
	}
	return v
}

// jsonFields maps JSON names to field types for a struct type, following
// embedded structs the way encoding/json does.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]reflect.Type{}
	if t == nil || t.Kind() != reflect.Struct || t == timeType {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			for k, v := range jsonFields(f.Type) {
				out[k] = v
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}
