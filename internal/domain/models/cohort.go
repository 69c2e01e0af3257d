// internal/domain/models/cohort.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cohort is the authorization boundary for groups. Only users whose email
// appears in AllowedEmails can register, see the cohort, or form groups in it.
type Cohort struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	Name          string             `bson:"name" json:"name"`
	NameCI        string             `bson:"name_ci" json:"-"`
	Description   string             `bson:"description" json:"description"`
	CreatedBy     primitive.ObjectID `bson:"created_by" json:"created_by"`
	AllowedEmails []string           `bson:"allowed_emails" json:"allowed_emails,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Allows reports whether email is on the cohort allow-list.
// Emails are stored lowercased.
func (c Cohort) Allows(email string) bool {
	for _, e := range c.AllowedEmails {
		if e == email {
			return true
		}
	}
	return false
}
