package models

import "time"

// Session is a bearer token issued on login.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Device    string
}
