package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/thearchitectit/mcp-runtime/internal/credential"
)

func TestAPIKeyValidatorSuccess(t *testing.T) {
	store := credential.NewMemoryStore()
	id, err := store.Create(context.Background(), &credential.Credential{
		Name:       "test",
		SecretHash: credential.HashSecret("s3cret"),
		Role:       credential.RoleOperator,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := NewAPIKeyValidator(store)
	authCtx, err := v.Validate(context.Background(), "s3cret", "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if authCtx.APIKeyID != id {
		t.Errorf("APIKeyID = %q, want %q", authCtx.APIKeyID, id)
	}
	if !authCtx.HasPermission("device.anything") {
		t.Errorf("operator should have device.* permission, got %v", authCtx.Permissions)
	}
}

func TestAPIKeyValidatorInvalidSecret(t *testing.T) {
	store := credential.NewMemoryStore()
	v := NewAPIKeyValidator(store)
	_, err := v.Validate(context.Background(), "nope", "")
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestAPIKeyValidatorIPWhitelist(t *testing.T) {
	store := credential.NewMemoryStore()
	_, err := store.Create(context.Background(), &credential.Credential{
		Name:        "test",
		SecretHash:  credential.HashSecret("s3cret"),
		Role:        credential.RoleDevice,
		IPWhitelist: []string{"10.0.0.1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := NewAPIKeyValidator(store)
	if _, err := v.Validate(context.Background(), "s3cret", "10.0.0.1"); err != nil {
		t.Errorf("allowed ip should validate, got %v", err)
	}
	if _, err := v.Validate(context.Background(), "s3cret", "8.8.8.8"); !errors.Is(err, ErrIPNotAllowed) {
		t.Errorf("err = %v, want ErrIPNotAllowed", err)
	}
}

func TestAPIKeyValidatorDisabled(t *testing.T) {
	store := credential.NewMemoryStore()
	_, err := store.Create(context.Background(), &credential.Credential{
		Name:       "test",
		SecretHash: credential.HashSecret("s3cret"),
		Role:       credential.RoleMonitor,
		Disabled:   true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := NewAPIKeyValidator(store)
	_, err = v.Validate(context.Background(), "s3cret", "")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}
