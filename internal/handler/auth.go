package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"tracepoint-dashboard-api/internal/logger"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHandler handles the placeholder login screen.
type AuthHandler struct {
	Service AuthService
	Logger  logger.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(svc AuthService, log logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Noop()
	}
	return &AuthHandler{
		Service:        svc,
		Logger:         log,
		ErrorHandler:   NewErrorHandler(log),
		ResponseHelper: NewResponseHelper(),
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// LoginHandler opens a session for valid credentials.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(ctx, w, err)
		return
	}

	session, err := h.Service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "log in")
		return
	}
	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Logged in", session)
}

// SignupHandler creates an account and logs it in.
func (h *AuthHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(ctx, w, err)
		return
	}

	session, err := h.Service.Signup(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "sign up")
		return
	}
	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Account created", session)
}

// LogoutHandler closes the caller's session.
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.Service.Logout(bearerToken(r))
	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Logged out", nil)
}

// MeHandler returns the caller's account.
func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	user, err := h.Service.CurrentUser(ctx, bearerToken(r))
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "load account")
		return
	}
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, user)
}
