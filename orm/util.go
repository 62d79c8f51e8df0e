package orm

import (
	"fmt"
	"reflect"
)

// toKeyString renders any primary-key value (int64, string, UUID,
// ...) into a stable map key.
func toKeyString(v any) string {
	return fmt.Sprintf("%v", v)
}

// reflectStructValues reads named exported fields off a *struct
// instance (any concrete entity type), returning the zero value
// (nil) for any field that does not exist rather than erroring — a
// struct that doesn't carry a given relation's FK property is a
// configuration choice, not a hydration bug.
func reflectStructValues(inst any, fields []string) (map[string]any, error) {
	rv := reflect.ValueOf(inst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("orm: reflectStructValues: expected a non-nil pointer, got %T", inst)
	}
	rv = rv.Elem()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		field := rv.FieldByName(f)
		if !field.IsValid() {
			out[f] = nil
			continue
		}
		out[f] = field.Interface()
	}
	return out, nil
}
