package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ErrArgumentKind is returned when a tool's argument type does not decode
// from a JSON object.
var ErrArgumentKind = errors.New("tool arguments must be a struct or string-keyed map")

var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// schemaFor reflects the JSON Schema advertised to the model for the
// argument type A, and the property names it marks as required.
func schemaFor[A any]() (params map[string]any, required []string, err error) {
	t := reflect.TypeFor[A]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t.Kind() == reflect.Struct:
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrArgumentKind, t)
	}

	defer func() {
		if r := recover(); r != nil {
			params, required, err = nil, nil, fmt.Errorf("failed to reflect schema for %s: %v", t, r)
		}
	}()

	s := reflector.ReflectFromType(t)

	data, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	if err := json.Unmarshal(data, &params); err != nil {
		return nil, nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	delete(params, "$schema")
	delete(params, "$id")

	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]any{}
	}
	params["type"] = "object"

	return params, s.Required, nil
}
