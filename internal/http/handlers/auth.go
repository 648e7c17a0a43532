package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skulicheck/skulicheck-be/internal/http/respond"
	"github.com/skulicheck/skulicheck-be/internal/models/dto"
	"github.com/skulicheck/skulicheck-be/internal/service"
)

// AuthHandler owns the /api account endpoints.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register attaches auth routes to the router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/verify-email", h.handleVerifyEmail)
		r.Post("/login", h.handleLogin)
		r.Post("/send-mfa-code", h.handleSendMFACode)
		r.Post("/verify-mfa", h.handleVerifyMFA)
		r.Post("/reset-password", h.handleResetPassword)
	})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		Phone:      req.Phone,
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "Registration successful. Please check your email for verification code.",
		dto.RegisterResponse{UserID: res.UserID, EmailSent: res.Delivered})
}

func (h *AuthHandler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), int64(req.UserID), req.Code); err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Email verified successfully", nil)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Login successful", dto.LoginResponse{
		User:         res.User.Summary(),
		SessionToken: res.Session.Token,
		AccessToken:  res.AccessToken,
	})
}

func (h *AuthHandler) handleSendMFACode(w http.ResponseWriter, r *http.Request) {
	var req dto.SendMFACodeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SendMFACode(r.Context(), req.Email, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	message := "MFA code sent to your email"
	if res.Method == service.MethodSMS {
		message = "MFA code sent to your phone"
	}
	respond.JSON(w, http.StatusOK, message, dto.SendMFACodeResponse{Method: res.Method, Sent: res.Sent})
}

func (h *AuthHandler) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyMFARequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyMFA(r.Context(), req.Email, req.Code, req.Method); err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "MFA verification successful", nil)
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	sent, err := h.svc.ResetPassword(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Password reset code sent to your email", dto.ResetPasswordResponse{Sent: sent})
}

// maxBodyBytes caps request bodies; every endpoint takes a small form.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond.Error(w, statusFor(svcErr), svcErr.Message)
}

// statusFor maps a flow error to its HTTP status. Duplicate emails and bad
// codes are client errors rather than 409/401.
func statusFor(err *service.Error) int {
	switch err.Kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindAuthentication:
		if errors.Is(err, service.ErrBadOrExpiredCode) {
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
