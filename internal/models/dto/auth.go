package dto

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/skulicheck/skulicheck-be/internal/models"
)

// ID accepts a user id sent either as a JSON number or a numeric string.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: idType}
	}
	*id = ID(n)
	return nil
}

type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	EmployeeID string `json:"employee_id"`
}

type RegisterResponse struct {
	UserID    int64 `json:"user_id"`
	EmailSent bool  `json:"email_sent"`
}

type VerifyEmailRequest struct {
	UserID ID     `json:"user_id"`
	Code   string `json:"code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User         models.Summary `json:"user"`
	SessionToken string         `json:"session_token"`
	AccessToken  string         `json:"access_token,omitempty"`
}

type SendMFACodeRequest struct {
	Email  string `json:"email"`
	Method string `json:"method"`
}

type SendMFACodeResponse struct {
	Method string `json:"method"`
	Sent   bool   `json:"sent"`
}

type VerifyMFARequest struct {
	Email  string `json:"email"`
	Code   string `json:"code"`
	Method string `json:"method"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordResponse struct {
	Sent bool `json:"sent"`
}

var idType = reflect.TypeOf(ID(0))
