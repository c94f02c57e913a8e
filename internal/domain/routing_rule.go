package domain

import "time"

// RoutingRule is a declarative predicate to target mapping evaluated on new complaints.
// Nil predicates act as wildcards. Exactly one of UserID and RoleID is set.
type RoutingRule struct {
	ID        string
	Name      string
	Order     int
	Category  *string
	Location  *string
	Priority  *ComplaintPriority
	UserID    *string
	RoleID    *string
	IsActive  bool
	CreatedAt time.Time
}
