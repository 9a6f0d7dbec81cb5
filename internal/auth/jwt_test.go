package auth

import (
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultJWTConfig()
	cfg.AccessTokenLifetime = 50 * time.Millisecond
	cfg.RefreshTokenLifetime = time.Hour
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueAccess("user-1", []string{"operator"}, "key-1", "1.2.3.4", "sess-1", []string{"read"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "operator" {
		t.Errorf("Roles = %v, want [operator]", claims.Roles)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %v, want access", claims.TokenType)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueAccess("user-1", nil, "", "", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	_, err = m.Validate(token)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestRevokeThenValidate(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueAccess("user-1", nil, "", "", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if err := m.Revoke(token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = m.Validate(token)
	if !errors.Is(err, ErrRevoked) {
		t.Errorf("err = %v, want ErrRevoked", err)
	}
}

func TestRefreshWrongTokenType(t *testing.T) {
	m := testManager(t)
	access, err := m.IssueAccess("user-1", nil, "", "", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	_, err = m.Refresh(access, nil, "", nil)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("err = %v, want ErrWrongTokenType", err)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	m := testManager(t)
	refresh, err := m.IssueRefresh("user-1", "key-1", "sess-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	access, err := m.Refresh(refresh, []string{"admin"}, "9.9.9.9", []string{"write"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := m.Validate(access)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %v, want access", claims.TokenType)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", claims.SessionID)
	}
}

func TestCleanupBlacklistEvictsOnlyExpired(t *testing.T) {
	m := testManager(t)
	longLived := DefaultJWTConfig()
	longLived.AccessTokenLifetime = time.Hour
	mgr, err := NewManager(longLived)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	shortToken, err := m.IssueAccess("short", nil, "", "", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	longToken, err := mgr.IssueAccess("long", nil, "", "", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if err := m.Revoke(shortToken); err != nil {
		t.Fatalf("Revoke short: %v", err)
	}
	if err := mgr.Revoke(longToken); err != nil {
		t.Fatalf("Revoke long: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	m.CleanupBlacklist()
	mgr.CleanupBlacklist()

	if len(m.blacklist) != 0 {
		t.Errorf("expired entry should have been evicted, blacklist = %v", m.blacklist)
	}
	if len(mgr.blacklist) != 1 {
		t.Errorf("still-valid entry should remain, blacklist = %v", mgr.blacklist)
	}
}

func TestPermissionsForRole(t *testing.T) {
	if perms := PermissionsForRole("monitor", nil); len(perms) != 3 {
		t.Errorf("monitor permissions = %v, want 3 entries", perms)
	}
}
