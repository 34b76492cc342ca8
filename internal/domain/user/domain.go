package user

import "time"

// Roles known to the platform. Kept as plain strings on the wire.
const (
	RoleAdmin      = "admin"
	RoleAnalyst    = "analyst"
	RoleResearcher = "researcher"
	RoleViewer     = "viewer"
)

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips fields that must never leave the gateway.
func (u *User) Public() map[string]any {
	return map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"username":  u.Username,
		"role":      u.Role,
		"is_active": u.IsActive,
	}
}
