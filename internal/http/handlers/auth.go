package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/auth"
)

// AuthHandler handles dashboard sign-in endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      *zap.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(authService *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

type requestCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type userResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Timezone    string `json:"timezone"`
	DigestTime  string `json:"digest_time"`
	IsPaused    bool   `json:"is_paused"`
}

type verifyCodeResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        userResponse `json:"user"`
}

// HandleRequestCode handles POST /api/auth/request_code.
func (h *AuthHandler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		respondError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if err := h.authService.RequestCode(r.Context(), req.PhoneNumber); err != nil {
		h.logger.Error("request code failed", zap.String("phone", req.PhoneNumber), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not send sign-in code")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "sign-in code sent"})
}

// HandleVerifyCode handles POST /api/auth/verify.
func (h *AuthHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "phone_number and code are required")
		return
	}

	token, user, err := h.authService.VerifyCode(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			respondError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		h.logger.Error("verify code failed", zap.String("phone", req.PhoneNumber), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, verifyCodeResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		User: userResponse{
			ID:          user.ID.String(),
			PhoneNumber: user.PhoneNumber,
			Timezone:    user.Timezone,
			DigestTime:  user.DigestTime,
			IsPaused:    user.IsPaused,
		},
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
