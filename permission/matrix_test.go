package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrixGrants(t *testing.T) {
	assert.True(t, HasPermission(RoleStaff, ApproveRequest))
	assert.False(t, HasPermission(RoleFaculty, ApproveRequest))
	assert.True(t, HasPermission(RoleFaculty, ViewInventory))
	assert.False(t, HasPermission(RoleStudent, ViewInventory))
	assert.True(t, HasPermission(RoleStudent, CreateRequest))
	assert.True(t, HasPermission(RoleAdmin, AssignRoles))
	assert.False(t, HasPermission(RoleStaff, AssignRoles))
}

func TestUnknownPermissionDenied(t *testing.T) {
	for _, role := range AllRoles() {
		assert.Falsef(t, HasPermission(role, "LAUNCH_ROCKETS"), "role %s", role)
	}
	assert.False(t, HasPermission(RoleUnknown, ViewProfile))
}

func TestMatrixRolesAndPermissions(t *testing.T) {
	m := DefaultMatrix()
	assert.Equal(t, []Role{RoleStaff, RoleAdmin}, m.Roles(ExportReports))
	assert.Nil(t, m.Roles("NOPE"))
	assert.Len(t, m.Names(), 22)
	assert.Len(t, m.Permissions(RoleStudent), 7)
	assert.Len(t, m.Permissions(RoleFaculty), 9)
	assert.Len(t, m.Permissions(RoleStaff), 16)
	assert.Len(t, m.Permissions(RoleAdmin), 22)
	assert.True(t, m.Known(ViewDashboard))
}

func TestNewMatrixRejectsBadInput(t *testing.T) {
	_, err := NewMatrix(nil)
	require.Error(t, err)

	_, err = NewMatrix(map[string][]Role{"": {RoleAdmin}})
	require.Error(t, err)

	_, err = NewMatrix(map[string][]Role{"X": {RoleUnknown}})
	require.Error(t, err)
}

func TestRegistryLimitsAndFreeze(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxPermissions; i++ {
		_, err := r.Register(string(rune('A'+i%26)) + string(rune('a'+i/26)))
		require.NoError(t, err)
	}
	_, err := r.Register("overflow")
	require.Error(t, err)

	r2 := NewRegistry()
	bit, err := r2.Register("ONE")
	require.NoError(t, err)
	assert.Equal(t, 0, bit)
	_, err = r2.Register("ONE")
	require.Error(t, err)
	r2.Freeze()
	assert.True(t, r2.Frozen())
	_, err = r2.Register("TWO")
	require.Error(t, err)
	name, ok := r2.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "ONE", name)
}

func TestMask64Bits(t *testing.T) {
	var m Mask64
	m.Set(3)
	m.Set(63)
	m.Set(64)
	assert.True(t, m.Has(3))
	assert.True(t, m.Has(63))
	assert.False(t, m.Has(64))
	assert.Equal(t, 2, m.Count())
	m.Clear(3)
	assert.False(t, m.Has(3))
	assert.Equal(t, uint64(1)<<63, m.Raw())
}
