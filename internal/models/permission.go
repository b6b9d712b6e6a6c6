package models

import "strings"

// Permissions encodes a set of operation flags as bits. Grants for the
// same resource are unioned across roles.
type Permissions uint32

const (
	PermRead Permissions = 1 << iota
	PermCreate
	PermUpdate
	PermDelete
	PermExecute
	PermSearch
	PermExport
	PermImport
	PermApprove
	PermAdmin
)

var permTokens = []struct {
	flag Permissions
	name string
}{
	{PermRead, "read"},
	{PermCreate, "create"},
	{PermUpdate, "update"},
	{PermDelete, "delete"},
	{PermExecute, "execute"},
	{PermSearch, "search"},
	{PermExport, "export"},
	{PermImport, "import"},
	{PermApprove, "approve"},
	{PermAdmin, "admin"},
}

// Union returns the bitwise OR of both permission sets.
func (p Permissions) Union(other Permissions) Permissions {
	return p | other
}

// Contains reports whether every flag in required is present.
func (p Permissions) Contains(required Permissions) bool {
	return p&required == required
}

// String renders the set as a comma-separated token list, for logging.
func (p Permissions) String() string {
	if p == 0 {
		return "none"
	}
	tokens := make([]string, 0, len(permTokens))
	for _, t := range permTokens {
		if p&t.flag != 0 {
			tokens = append(tokens, t.name)
		}
	}
	return strings.Join(tokens, ",")
}

// PermissionEntry is one resolved grant: a resource id and the unioned
// permission bits the caller holds on it.
type PermissionEntry struct {
	ResourceID  string      `json:"resource_id"`
	Permissions Permissions `json:"permissions"`
}
