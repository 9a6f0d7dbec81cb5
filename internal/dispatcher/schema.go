package dispatcher

import (
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/validation"
)

// patternMatchTimeout bounds how long a single JSON-Schema `pattern`
// keyword is allowed to run against one argument value (§4.9 argument
// validation).
const patternMatchTimeout = 50 * time.Millisecond

// validateArguments checks arguments against a tool's declared
// inputSchema: required properties must be present, and any property
// carrying a JSON-Schema `pattern` keyword must match via a ReDoS-guarded
// regex (internal/validation.SafeRegex) rather than a raw regexp.Compile.
// Only a minimal subset of JSON Schema is enforced — required and
// pattern — since that is what the original implementation's argument
// validator checks; anything else is left to the Backend itself.
func validateArguments(schema interface{}, arguments map[string]interface{}) *protocol.Error {
	schemaMap, ok := schema.(map[string]interface{})
	if !ok {
		return nil
	}

	for _, name := range requiredFields(schemaMap["required"]) {
		if _, present := arguments[name]; !present {
			return protocol.NewError(
				protocol.CodeInvalidParams,
				"missing required argument: "+name,
				map[string]string{"field": name},
			)
		}
	}

	properties, ok := schemaMap["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	for name, rawProp := range properties {
		prop, ok := rawProp.(map[string]interface{})
		if !ok {
			continue
		}
		pattern, ok := prop["pattern"].(string)
		if !ok || pattern == "" {
			continue
		}
		value, present := arguments[name]
		if !present {
			continue
		}
		str, ok := value.(string)
		if !ok {
			return protocol.NewError(
				protocol.CodeInvalidParams,
				"argument must be a string: "+name,
				map[string]string{"field": name},
			)
		}

		matched, err := validation.SafeRegex(pattern, str, patternMatchTimeout)
		if err != nil {
			return protocol.NewError(
				protocol.CodeInvalidParams,
				"argument pattern could not be evaluated: "+name,
				map[string]string{"field": name},
			)
		}
		if !matched {
			return protocol.NewError(
				protocol.CodeInvalidParams,
				"argument does not match required pattern: "+name,
				map[string]string{"field": name},
			)
		}
	}

	return nil
}

// requiredFields normalizes a schema's `required` keyword, which arrives as
// []interface{} when the schema was decoded from JSON but as []string when
// a Backend builds its InputSchema as a Go literal (as DemoBackend does).
func requiredFields(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, r := range v {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}
