package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeSingle(t *testing.T) {
	msg, errObj := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if errObj != nil {
		t.Fatalf("unexpected decode error: %v", errObj)
	}
	if msg.IsBatch() {
		t.Fatalf("expected single message, got batch")
	}
	if msg.Single.Method != "ping" {
		t.Errorf("method = %q, want ping", msg.Single.Method)
	}
	if msg.Single.IsNotification() {
		t.Errorf("request with id=1 should not be a notification")
	}
}

func TestDecodeNotification(t *testing.T) {
	msg, errObj := Decode([]byte(`{"jsonrpc":"2.0","method":"ping"}`))
	if errObj != nil {
		t.Fatalf("unexpected decode error: %v", errObj)
	}
	if !msg.Single.IsNotification() {
		t.Errorf("request without id should be a notification")
	}
}

func TestDecodeBatch(t *testing.T) {
	msg, errObj := Decode([]byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`))
	if errObj != nil {
		t.Fatalf("unexpected decode error: %v", errObj)
	}
	if !msg.IsBatch() {
		t.Fatalf("expected batch message")
	}
	if len(msg.Batch) != 2 {
		t.Fatalf("batch length = %d, want 2", len(msg.Batch))
	}
}

func TestDecodeEmptyBatchIsInvalidRequest(t *testing.T) {
	_, errObj := Decode([]byte(`[]`))
	if errObj == nil || errObj.Code != CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest for empty batch, got %v", errObj)
	}
}

func TestDecodeNonObjectIsParseError(t *testing.T) {
	cases := [][]byte{
		[]byte(`"just a string"`),
		[]byte(`42`),
		[]byte(``),
		[]byte(`not json at all`),
	}
	for _, c := range cases {
		_, errObj := Decode(c)
		if errObj == nil || errObj.Code != CodeParseError {
			t.Errorf("Decode(%q) error = %v, want ParseError", c, errObj)
		}
	}
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{JSONRPC: "2.0", Method: "ping"}, false},
		{"wrong version", Request{JSONRPC: "1.0", Method: "ping"}, true},
		{"missing method", Request{JSONRPC: "2.0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseMarshalExclusivity(t *testing.T) {
	resp := Response{
		JSONRPC: Version,
		ID:      NewNumberID(1),
		Result:  "ok",
		Error:   NewError(CodeInternalError, "boom", nil),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, hasResult := decoded["result"]; hasResult {
		t.Errorf("response with error set should not include result, got %s", data)
	}
	if _, hasError := decoded["error"]; !hasError {
		t.Errorf("response should include error, got %s", data)
	}
}

func TestResponseNullResultPermitted(t *testing.T) {
	resp := NewResultResponse(NewNumberID(1), nil)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	result, ok := decoded["result"]
	if !ok {
		t.Fatalf("expected result key present, got %s", data)
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

func TestIDRoundTrip(t *testing.T) {
	id := NewStringID("abc")
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != `"abc"` {
		t.Errorf("decoded id = %s, want \"abc\"", decoded.String())
	}
}
