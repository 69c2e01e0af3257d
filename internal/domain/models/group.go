// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TechSkill is one entry of a role's tech stack.
type TechSkill struct {
	SkillName        string `bson:"skill_name" json:"skill_name"`
	ExperienceMonths int    `bson:"experience_months" json:"experience_months"`
	Mandatory        bool   `bson:"mandatory" json:"mandatory"`
}

// RoleRequirement describes a role the group is looking to fill.
type RoleRequirement struct {
	RoleName  string      `bson:"role_name" json:"role_name"`
	TechStack []TechSkill `bson:"tech_stack" json:"tech_stack"`
}

// Announcement is a message posted by a group admin.
type Announcement struct {
	Message   string             `bson:"message" json:"message"`
	CreatedBy primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Group is a bounded-capacity team inside a cohort.
//
// Membership is not embedded: a user is a member when users.current_group
// equals the group's ID. MembersCount mirrors that count and always
// satisfies 0 < MembersCount <= MaximumMembers. The creator is a member for
// the life of the group.
type Group struct {
	ID               primitive.ObjectID `bson:"_id" json:"id"`
	CohortID         primitive.ObjectID `bson:"cohort_id" json:"cohort_id"`
	Name             string             `bson:"name" json:"name"`
	NameCI           string             `bson:"name_ci" json:"-"`
	CreatedBy        primitive.ObjectID `bson:"created_by" json:"created_by"`
	MembersCount     int                `bson:"members_count" json:"members_count"`
	MaximumMembers   int                `bson:"maximum_members" json:"maximum_members"`
	RoleRequirements []RoleRequirement  `bson:"role_requirements" json:"role_requirements"`
	Announcements    []Announcement     `bson:"announcements" json:"announcements"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsFull reports whether no further member can be admitted.
func (g Group) IsFull() bool {
	return g.MembersCount >= g.MaximumMembers
}
