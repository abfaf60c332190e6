package service

import (
	"fmt"

	"storefront/internal/models"
)

// RequireAdmin gates admin-only operations on an explicit role value
// passed by the caller rather than any ambient session state.
func RequireAdmin(role models.Role) error {
	if role != models.RoleAdmin {
		return fmt.Errorf("%w: admin role required", models.ErrForbidden)
	}
	return nil
}
