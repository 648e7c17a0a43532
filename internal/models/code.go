package models

import "time"

// Purpose namespaces a verification code so a code issued for one flow can
// never be redeemed by another.
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeMFAEmail      Purpose = "mfa_email"
	PurposeMFASMS        Purpose = "mfa_sms"
	PurposePasswordReset Purpose = "password_reset"
)

// MFAPurpose returns the purpose tag for an MFA method.
func MFAPurpose(method string) Purpose {
	return Purpose("mfa_" + method)
}

// VerificationCode is a one-time numeric code issued to a user.
type VerificationCode struct {
	ID        int64
	UserID    int64
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
	Used      bool
}
