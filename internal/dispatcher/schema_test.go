package dispatcher

import "testing"

func TestValidateArgumentsPattern(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code": map[string]interface{}{"type": "string", "pattern": `^[A-Z]{3}\d{2}$`},
		},
		"required": []interface{}{"code"},
	}

	if err := validateArguments(schema, map[string]interface{}{"code": "ABC12"}); err != nil {
		t.Fatalf("expected valid code to pass, got %+v", err)
	}
	if err := validateArguments(schema, map[string]interface{}{"code": "nope"}); err == nil {
		t.Fatal("expected pattern mismatch to fail")
	}
	if err := validateArguments(schema, map[string]interface{}{}); err == nil {
		t.Fatal("expected missing required field to fail")
	}
	if err := validateArguments(schema, map[string]interface{}{"code": 12}); err == nil {
		t.Fatal("expected non-string value against pattern to fail")
	}
}

func TestValidateArgumentsNoSchema(t *testing.T) {
	if err := validateArguments(nil, map[string]interface{}{"anything": true}); err != nil {
		t.Fatalf("expected nil schema to pass through, got %+v", err)
	}
}

func TestRequiredFieldsBothShapes(t *testing.T) {
	if got := requiredFields([]string{"a", "b"}); len(got) != 2 {
		t.Fatalf("unexpected: %v", got)
	}
	if got := requiredFields([]interface{}{"a", "b"}); len(got) != 2 {
		t.Fatalf("unexpected: %v", got)
	}
	if got := requiredFields(nil); got != nil {
		t.Fatalf("unexpected: %v", got)
	}
}
