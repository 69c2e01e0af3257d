// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles.
const (
	RoleSystemAdmin = "system_admin"
	RoleCohortAdmin = "cohort_admin"
	RoleStudent     = "student"
)

// SocialLink is a professional profile link shown on a user's profile.
type SocialLink struct {
	Platform string `bson:"platform" json:"platform"`
	URL      string `bson:"url" json:"url"`
}

// User is a person who signed in with Google.
//
// CurrentGroup is owned by the membership service: it is only ever
// written inside approve, create-group, leave, remove-member and
// delete-group.
type User struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	GoogleID        *string              `bson:"google_id,omitempty" json:"-"`
	Email           string               `bson:"email" json:"email"`
	FullName        string               `bson:"full_name" json:"full_name"`
	AvatarURL       string               `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Username        *string              `bson:"username,omitempty" json:"username,omitempty"`
	Role            string               `bson:"role" json:"role"` // system_admin | cohort_admin | student
	CurrentGroup    *primitive.ObjectID  `bson:"current_group" json:"current_group"`
	EnrolledCohorts []primitive.ObjectID `bson:"enrolled_cohorts" json:"enrolled_cohorts"`
	SocialLinks     []SocialLink         `bson:"social_links" json:"social_links"`

	// bcrypt hash of the live refresh token's jti; empty when signed out.
	RefreshTokenHash string `bson:"refresh_token_hash,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the role grants cohort-wide administration.
func (u User) IsAdmin() bool {
	return u.Role == RoleSystemAdmin || u.Role == RoleCohortAdmin
}
