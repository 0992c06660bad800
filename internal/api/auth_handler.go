package api

import (
	"net/http"

	"github.com/voxdeck/voxdeck/internal/session"
)

// authHandler groups the auth and session HTTP handlers.
type authHandler struct {
	sessions *session.Store
}

func newAuthHandler(sessions *session.Store) *authHandler {
	return &authHandler{sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	res := h.sessions.Login(r.Context(), req.Email, req.Password)
	if !res.Success {
		if res.Code == session.CodeAccountNotVerified {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"code":  res.Code,
				"email": res.Email,
			})
			return
		}
		writeError(w, http.StatusUnauthorized, "login_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	res := h.sessions.Register(r.Context(), req)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "registration_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"otp_required": res.OTPRequired,
		"email":        res.Email,
		"session":      h.sessions.Snapshot(),
	})
}

type otpRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
}

// VerifyOTP handles POST /api/v1/auth/verify-otp.
func (h *authHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" || req.OTPCode == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and otp_code are required")
		return
	}

	res := h.sessions.VerifyOTP(r.Context(), req.Email, req.OTPCode)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "verification_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// ResendOTP handles POST /api/v1/auth/resend-otp.
func (h *authHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email is required")
		return
	}

	res := h.sessions.ResendOTP(r.Context(), req.Email)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "resend_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password.
func (h *authHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email is required")
		return
	}

	res := h.sessions.ForgotPassword(r.Context(), req.Email)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "reset_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

type resetPasswordRequest struct {
	Email              string `json:"email"`
	OTPCode            string `json:"otp_code"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *authHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.NewPassword == "" || req.NewPassword != req.ConfirmNewPassword {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "passwords must match")
		return
	}

	res := h.sessions.ResetPassword(r.Context(), req.Email, req.OTPCode, req.NewPassword, req.ConfirmNewPassword)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "reset_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

// Me handles GET /api/v1/auth/me (session).
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// Logout handles POST /api/v1/auth/logout (session).
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), session.LogoutOptions{})
	w.WriteHeader(http.StatusNoContent)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdatePassword handles PUT /api/v1/auth/password (session).
func (h *authHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "passwords must match")
		return
	}

	res := h.sessions.UpdatePassword(r.Context(), req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "update_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
