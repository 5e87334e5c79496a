package user_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type UserService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Handler struct {
	Service UserService
	Logger  *logger.Logger
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Register", models.InvalidInput("Invalid request body."))
		return
	}

	resp, err := h.Service.Register(r.Context(), req)
	if err != nil {
		h.fail(w, "Register", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Login", models.InvalidInput("Invalid request body."))
		return
	}

	resp, err := h.Service.Login(r.Context(), req)
	if err != nil {
		h.fail(w, "Login", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

// Me returns the authenticated caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		h.fail(w, "Me", models.ErrUnauthorized)
		return
	}

	user, err := h.Service.GetUser(r.Context(), userID)
	if err != nil {
		h.fail(w, "Me", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user.Summary())
}

// RegisterRoutes mounts the public auth endpoints. Me is mounted by the
// router behind the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
}
