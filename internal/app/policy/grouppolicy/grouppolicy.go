// internal/app/policy/grouppolicy/grouppolicy.go
package grouppolicy

import (
	"github.com/dalemusser/cohorthub/internal/domain/models"
)

// IsGroupAdmin reports whether user may administer group: review
// applications, edit role requirements, post announcements, remove members
// and delete the group.
//
// System and cohort admins administer every group; otherwise only the
// group's creator does. The result depends only on its arguments, so call
// it at each authorization point instead of caching it.
func IsGroupAdmin(user models.User, group models.Group) bool {
	if user.IsAdmin() {
		return true
	}
	return !user.ID.IsZero() && user.ID == group.CreatedBy
}

// IsMember reports whether user currently belongs to group.
func IsMember(user models.User, group models.Group) bool {
	return user.CurrentGroup != nil && *user.CurrentGroup == group.ID
}

// CanViewGroup reports whether user may read group details.
// Students see only their own group.
func CanViewGroup(user models.User, group models.Group) bool {
	return IsGroupAdmin(user, group) || IsMember(user, group)
}
