package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// mustGenerateSchema reflects T's json/jsonschema struct tags into the
// map[string]any shape a tool Definition.Parameters expects. Grounded on
// the teacher's own function-tool schema generator: a non-referencing,
// inlined-struct reflector so the LLM sees one flat object schema per tool.
func mustGenerateSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool: generating schema for %T: %v", *new(T), err))
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		panic(fmt.Sprintf("tool: generating schema for %T: %v", *new(T), err))
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result
}
