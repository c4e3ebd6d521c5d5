package domain

import (
	"fmt"
	"time"
)

// User owns transactions and recurring series. Deleting a user removes both.
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id,omitempty"` // aggregator user id
	Email      string    `json:"email"`
	Username   string    `json:"username,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayUsername returns the stored username, or a generated one when none was set.
func (u *User) DisplayUsername() string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("user%d", u.ID)
}

// Role is kept in the schema for the admin layer; nothing in the core reads it.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
