package domain

import "github.com/google/uuid"

// Caller is the authenticated principal an operation runs on behalf of.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

// SystemCaller is used by background jobs.
func SystemCaller() Caller {
	return Caller{UserID: uuid.Nil, Role: RoleSystem}
}

func (c Caller) IsStaff() bool { return c.Role.IsStaff() }

// CanAccess applies the resource guard for this caller.
func (c Caller) CanAccess(ownerUserID uuid.UUID) bool {
	return CanAccess(c.UserID, c.IsStaff(), ownerUserID)
}

// CanAccess allows staff to touch any resource and everyone else only their own.
func CanAccess(callerUserID uuid.UUID, callerIsStaff bool, ownerUserID uuid.UUID) bool {
	if callerIsStaff {
		return true
	}
	return callerUserID != uuid.Nil && callerUserID == ownerUserID
}
