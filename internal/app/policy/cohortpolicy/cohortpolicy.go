// Package cohortpolicy provides authorization policies for cohorts.
//
// Authorization rules:
//   - System admins can create cohorts and manage every cohort
//   - Cohort admins can manage every cohort (description and allow-list)
//   - Students can only see cohorts whose allow-list contains their email
package cohortpolicy

import (
	"github.com/dalemusser/cohorthub/internal/domain/models"
)

// CanCreate reports whether user may create cohorts.
func CanCreate(user models.User) bool {
	return user.Role == models.RoleSystemAdmin
}

// CanManage reports whether user may edit a cohort's description and allow-list.
func CanManage(user models.User) bool {
	return user.IsAdmin()
}

// CanAccess reports whether user may see cohort and form or join groups in it.
func CanAccess(user models.User, cohort models.Cohort) bool {
	if user.IsAdmin() {
		return true
	}
	return cohort.Allows(user.Email)
}
