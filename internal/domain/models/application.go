// internal/domain/models/application.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Application statuses. UNDER_REVIEW is the only non-terminal state.
const (
	ApplicationUnderReview = "UNDER_REVIEW"
	ApplicationApproved    = "APPROVED"
	ApplicationDenied      = "DENIED"
	ApplicationWithdrawn   = "WITHDRAWN"
)

// DefaultReviewFeedback is stored when a reviewer gives no feedback.
const DefaultReviewFeedback = "Your application has been reviewed by the group admin."

// ApplicantSkill is a skill claimed by an applicant.
type ApplicantSkill struct {
	SkillName        string `bson:"skill_name" json:"skill_name"`
	ExperienceMonths int    `bson:"experience_months" json:"experience_months"`
}

// ApplicantResource is a supporting link (portfolio, repo, resume).
type ApplicantResource struct {
	Name string `bson:"name" json:"name"`
	URL  string `bson:"url" json:"url"`
}

// Application is one user's request to join one group.
type Application struct {
	ID          primitive.ObjectID  `bson:"_id" json:"id"`
	CohortID    primitive.ObjectID  `bson:"cohort_id" json:"cohort_id"`
	GroupID     primitive.ObjectID  `bson:"group_id" json:"group_id"`
	ApplicantID primitive.ObjectID  `bson:"applicant_id" json:"applicant_id"`
	Pitch       string              `bson:"pitch" json:"pitch"`
	Skills      []ApplicantSkill    `bson:"skills" json:"skills"`
	Resources   []ApplicantResource `bson:"resources" json:"resources"`

	Status     string              `bson:"status" json:"status"`
	ReviewerID *primitive.ObjectID `bson:"reviewer_id,omitempty" json:"reviewer_id,omitempty"`
	Feedback   string              `bson:"feedback,omitempty" json:"feedback,omitempty"`
	ReviewedAt *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further transition is possible.
func (a Application) IsTerminal() bool {
	return a.Status != ApplicationUnderReview
}
