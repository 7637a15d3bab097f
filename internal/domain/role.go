package domain

// Roles carried in JWT claims.
const (
	RoleUser   = "user"
	RoleBroker = "broker"
	RoleAdmin  = "admin"
)
