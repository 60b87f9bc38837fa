package models

import "time"

// Tenant is a customer organisation owning a partition of the knowledge base.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Plan      string    `json:"plan,omitempty" db:"plan"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
