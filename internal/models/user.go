package models

import "time"

// User captures application-facing fields for an account holder.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	Verified     bool      `json:"is_verified"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the public subset of a user returned after login.
type Summary struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Summary returns the login-safe view of u.
func (u User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}
