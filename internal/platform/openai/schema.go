package openai

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
)

// ReflectSchema builds a strict structured-output schema from a Go type's json/jsonschema tags.
func ReflectSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	strictify(m)
	return m
}

// CapArray sets maxItems on a top-level array property; unknown or non-array properties are left alone.
func CapArray(schema map[string]any, property string, max int) {
	if max <= 0 {
		return
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	prop, ok := props[property].(map[string]any)
	if !ok || prop["type"] != "array" {
		return
	}
	prop["maxItems"] = max
}

// strictify marks every object closed and every property required, recursively.
func strictify(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				strictify(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		strictify(items)
	}
}
