// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
	"github.com/petlove/backoffice-api/internal/passwordreset"
)

const resetRequestedMessage = "if the email is registered, a reset code has been sent"

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /auth. credentialLimiter wraps the endpoints that
// accept passwords or reset codes and may be nil.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	credentialLimiter func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if credentialLimiter != nil {
				r.Use(credentialLimiter)
			}
			r.Post("/login", h.Login)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/verify-code", h.VerifyCode)
			r.Post("/reset-password", h.ResetPassword)
		})

		r.Post("/register", h.Register)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/verify-email", h.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/change-password", h.ChangePassword)
			r.Post("/logout", h.Logout)
			r.Get("/sessions", h.GetSessions)
		})
	})
}

// decode reads the JSON body into dst and validates it, writing the error
// response itself when either step fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.InvalidRequest(w, err)
		return false
	}

	return true
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Login(
		r.Context(),
		req,
		middleware.ClientIP(r),
		r.UserAgent(),
	)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			core.JSONError(w, core.UnauthorizedError("invalid email or password"))
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "login successful", resp)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			core.JSONError(w, core.DuplicateError("email"))
			return
		}
		if errors.Is(err, core.ErrInvalidInput) {
			core.BadRequest(w, "invalid password")
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.Created(w, "account created", user)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Refresh(
		r.Context(),
		req,
		middleware.ClientIP(r),
		r.UserAgent(),
	)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			core.JSONError(w, core.UnauthorizedError("invalid or expired session"))
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "token refreshed", resp)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		core.Unauthorized(w, "")
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			core.JSONError(w, core.UnauthorizedError("current password is incorrect"))
			return
		}
		if errors.Is(err, core.ErrNotFound) {
			core.Unauthorized(w, "")
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "password changed", nil)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.BadRequest(w, "invalid request body")
			return
		}
	}

	h.service.Logout(r.Context(), claims, req.RefreshToken)

	core.OK(w, "logged out", nil)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.ForgotPassword(
		r.Context(),
		req,
		middleware.ClientIP(r),
		r.UserAgent(),
	)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, resetRequestedMessage, nil)
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	valid, err := h.service.VerifyResetCode(r.Context(), req)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	if !valid {
		core.JSONError(w, core.NewAppError(
			passwordreset.ErrInvalidCode,
			"invalid or expired code",
			http.StatusBadRequest,
			"INVALID_CODE",
		))
		return
	}

	core.OK(w, "code is valid", VerifyCodeResponse{Valid: true})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		if errors.Is(err, passwordreset.ErrInvalidCode) {
			core.JSONError(w, core.NewAppError(
				err,
				"invalid or expired code",
				http.StatusBadRequest,
				"INVALID_CODE",
			))
			return
		}
		if errors.Is(err, core.ErrInvalidInput) {
			core.BadRequest(w, "invalid password")
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "password reset successful", nil)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req); err != nil {
		if errors.Is(err, ErrInvalidLink) {
			core.JSONError(w, core.NewAppError(
				err,
				"invalid or expired link",
				http.StatusBadRequest,
				"INVALID_LINK",
			))
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "email verified", nil)
}

func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		core.Unauthorized(w, "")
		return
	}

	sessions, err := h.service.Sessions(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "active sessions", SessionsResponse{Sessions: sessions})
}
