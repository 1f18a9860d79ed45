package models

import "github.com/golang-jwt/jwt/v5"

// StaffRole represents the roles the external identity service issues for
// institution staff. Account management lives outside this API; only token
// contents are modelled here.
type StaffRole string

const (
	RoleSuperAdmin StaffRole = "SUPERADMIN"
	RoleAdmin      StaffRole = "ADMIN"
	RoleStaff      StaffRole = "STAFF"
)

// StaffClaims is the JWT payload of externally issued staff access tokens.
type StaffClaims struct {
	UserID        string    `json:"user_id"`
	Role          StaffRole `json:"role"`
	InstitutionID string    `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}
