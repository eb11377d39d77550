package permission

import (
	"errors"
	"sort"
	"sync"
)

// Permission names granted by the default matrix.
const (
	ViewProfile        = "VIEW_PROFILE"
	EditProfile        = "EDIT_PROFILE"
	ViewAvailableItems = "VIEW_AVAILABLE_ITEMS"
	CreateRequest      = "CREATE_REQUEST"
	ViewOwnRequests    = "VIEW_OWN_REQUESTS"
	CancelOwnRequest   = "CANCEL_OWN_REQUEST"
	ViewSettings       = "VIEW_SETTINGS"

	ViewInventory = "VIEW_INVENTORY"
	ViewDashboard = "VIEW_DASHBOARD"

	EditInventory   = "EDIT_INVENTORY"
	DeleteInventory = "DELETE_INVENTORY"
	ViewAllRequests = "VIEW_ALL_REQUESTS"
	ApproveRequest  = "APPROVE_REQUEST"
	ViewReports     = "VIEW_REPORTS"
	ExportReports   = "EXPORT_REPORTS"
	SystemSettings  = "SYSTEM_SETTINGS"

	AdminSettings   = "ADMIN_SETTINGS"
	ViewUsers       = "VIEW_USERS"
	EditUsers       = "EDIT_USERS"
	DeactivateUsers = "DEACTIVATE_USERS"
	DeleteUsers     = "DELETE_USERS"
	AssignRoles     = "ASSIGN_ROLES"
)

// Matrix is an immutable permission table: each permission name maps to the
// set of roles allowed to exercise it. Lookups are lock free once built.
type Matrix struct {
	registry *Registry
	masks    [RoleAdmin + 1]Mask64
}

// NewMatrix builds a frozen matrix from a permission -> allowed roles table.
func NewMatrix(table map[string][]Role) (*Matrix, error) {
	if len(table) == 0 {
		return nil, errors.New("permission matrix is empty")
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	// stable bit assignment across processes
	sort.Strings(names)

	m := &Matrix{registry: NewRegistry()}
	for _, name := range names {
		bit, err := m.registry.Register(name)
		if err != nil {
			return nil, errors.New("permission " + name + ": " + err.Error())
		}
		for _, role := range table[name] {
			if !role.Valid() {
				return nil, errors.New("permission " + name + ": invalid role")
			}
			m.masks[role].Set(bit)
		}
	}
	m.registry.Freeze()

	return m, nil
}

// Allows reports whether role may exercise the named permission. Unknown
// roles and unknown permission names are denied.
func (m *Matrix) Allows(role Role, name string) bool {
	if m == nil || !role.Valid() {
		return false
	}
	bit, ok := m.registry.Bit(name)
	if !ok {
		return false
	}
	return m.masks[role].Has(bit)
}

// Roles lists the roles granted name, in ascending order.
func (m *Matrix) Roles(name string) []Role {
	bit, ok := m.registry.Bit(name)
	if !ok {
		return nil
	}
	var out []Role
	for _, role := range AllRoles() {
		if m.masks[role].Has(bit) {
			out = append(out, role)
		}
	}
	return out
}

// Permissions lists every permission granted to role, sorted by name.
func (m *Matrix) Permissions(role Role) []string {
	if !role.Valid() {
		return nil
	}
	mask := m.masks[role]
	out := make([]string, 0, mask.Count())
	for bit := 0; bit < MaxPermissions; bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := m.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Names returns every permission name known to the matrix, sorted.
func (m *Matrix) Names() []string {
	out := make([]string, 0, m.registry.Count())
	for bit := 0; bit < m.registry.Count(); bit++ {
		if name, ok := m.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Known reports whether name is present in the matrix.
func (m *Matrix) Known(name string) bool {
	_, ok := m.registry.Bit(name)
	return ok
}

// DefaultTable returns a fresh copy of the built-in permission table.
func DefaultTable() map[string][]Role {
	everyone := []Role{RoleStudent, RoleFaculty, RoleStaff, RoleAdmin}
	facultyUp := []Role{RoleFaculty, RoleStaff, RoleAdmin}
	staffUp := []Role{RoleStaff, RoleAdmin}
	adminOnly := []Role{RoleAdmin}

	table := make(map[string][]Role, 22)
	for _, name := range []string{ViewProfile, EditProfile, ViewAvailableItems, CreateRequest, ViewOwnRequests, CancelOwnRequest, ViewSettings} {
		table[name] = everyone
	}
	for _, name := range []string{ViewInventory, ViewDashboard} {
		table[name] = facultyUp
	}
	for _, name := range []string{EditInventory, DeleteInventory, ViewAllRequests, ApproveRequest, ViewReports, ExportReports, SystemSettings} {
		table[name] = staffUp
	}
	for _, name := range []string{AdminSettings, ViewUsers, EditUsers, DeactivateUsers, DeleteUsers, AssignRoles} {
		table[name] = adminOnly
	}
	return table
}

var (
	defaultOnce   sync.Once
	defaultMatrix *Matrix
)

// DefaultMatrix returns the process-wide matrix built from DefaultTable.
func DefaultMatrix() *Matrix {
	defaultOnce.Do(func() {
		m, err := NewMatrix(DefaultTable())
		if err != nil {
			panic("permission: default matrix: " + err.Error())
		}
		defaultMatrix = m
	})
	return defaultMatrix
}
