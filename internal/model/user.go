package model

import "time"

// User is a chat identity known to the bot. A user may be bound to at most
// one point; a point may have many bound users.
type User struct {
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`

	// Joined fields (populated when listing users bound to a point).
	PointID int64      `json:"point_id,omitempty"`
	BoundAt *time.Time `json:"bound_at,omitempty"`
}

// User roles.
const (
	RolePoint = "point"
	RoleAdmin = "admin"
)

// Operator is an account for the operator HTTP API.
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Operator roles.
const (
	OperatorRoleAdmin    = "admin"
	OperatorRoleOperator = "operator"
)

// RoleAtLeast reports whether role meets the minimum required operator role.
func RoleAtLeast(role, minimum string) bool {
	rank := map[string]int{OperatorRoleOperator: 1, OperatorRoleAdmin: 2}
	return rank[role] >= rank[minimum]
}
