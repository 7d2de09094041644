package model

// Role is the identity-layer role carried by a principal.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// Privileged reports whether the role sees and manages every reservation.
func (r Role) Privileged() bool { return r == RoleStaff || r == RoleAdmin }

// Principal is the authenticated caller as handed over by the identity
// layer. BeneficiaryID is set when the caller is linked to a student record.
type Principal struct {
	UserID        uint64
	Role          Role
	BeneficiaryID *uint64
}

// Privileged is a shorthand for p.Role.Privileged().
func (p Principal) Privileged() bool { return p.Role.Privileged() }
