package services

import "kasir/internal/models"

// Action is a capability required to perform a restricted operation.
type Action string

const (
	ActionManageProducts Action = "manage-products"
	ActionManageUsers    Action = "manage-users"
)

var capabilities = map[Action][]models.Role{
	ActionManageProducts: {models.RoleAdmin, models.RoleManager},
	ActionManageUsers:    {models.RoleAdmin},
}

// Can reports whether the given role holds the capability for the action.
// It is evaluated at the top of every restricted service operation, before
// any validation or persistence work.
func Can(role models.Role, action Action) bool {
	for _, allowed := range capabilities[action] {
		if role == allowed {
			return true
		}
	}
	return false
}
