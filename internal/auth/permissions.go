package auth

import "github.com/thearchitectit/mcp-runtime/internal/credential"

// PermissionsForRole returns the fixed permission set granted by role,
// taken verbatim from the original jwt.rs::get_permissions_for_role
// mapping (§4.5). Device and Custom roles carry their payload in extra
// (the credential's Permissions field): the allowed-device list for
// Device, the explicit permission set for Custom.
func PermissionsForRole(role credential.Role, extra []string) []string {
	switch role {
	case credential.RoleAdmin:
		return []string{"admin.*", "key.*", "user.*", "system.*"}
	case credential.RoleOperator:
		return []string{"device.*", "monitor.*", "key.create", "key.list"}
	case credential.RoleMonitor:
		return []string{"monitor.*", "health.check", "status.read"}
	case credential.RoleDevice:
		perms := make([]string, 0, len(extra))
		for _, device := range extra {
			perms = append(perms, "device."+device)
		}
		return perms
	case credential.RoleCustom:
		return append([]string(nil), extra...)
	default:
		return nil
	}
}

// roleFromString converts a role string (as carried in a JWT's roles
// claim) back into a credential.Role for permission lookup. Unknown
// strings map to the zero Role, which PermissionsForRole resolves to no
// permissions rather than guessing.
func roleFromString(s string) credential.Role {
	return credential.Role(s)
}
