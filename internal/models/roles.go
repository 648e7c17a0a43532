package models

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)
