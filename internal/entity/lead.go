package entity

import (
	"time"

	"github.com/google/uuid"
)

// Lead is an inquiry captured by the intake path. It is never mutated after creation.
type Lead struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	PreferredClass string    `json:"preferred_class"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewLead builds a lead with a fresh id. Input is expected to be validated already.
func NewLead(fullName, phone, email, preferredClass string, now time.Time) *Lead {
	return &Lead{
		ID:             uuid.New().String(),
		FullName:       fullName,
		Phone:          phone,
		Email:          email,
		PreferredClass: preferredClass,
		CreatedAt:      now.UTC(),
	}
}
