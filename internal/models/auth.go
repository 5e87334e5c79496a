package models

import "strings"

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return InvalidInput("Username, email and password are required.")
	}
	if !strings.Contains(r.Email, "@") {
		return InvalidInput("Email is invalid.")
	}
	if len(r.Password) < 6 {
		return InvalidInput("Password must be at least 6 characters.")
	}
	return nil
}

// LoginRequest accepts either an email or a username as the identifier.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Identifier() string {
	if r.Email != "" {
		return strings.TrimSpace(r.Email)
	}
	return strings.TrimSpace(r.Username)
}

type AuthResponse struct {
	User  UserSummary `json:"user"`
	Token string      `json:"token,omitempty"`
}

// Identity is the verified caller produced by the auth layer.
type Identity struct {
	UserID string
	Role   Role
	// Email and Username are only set by external identity providers.
	Email    string
	Username string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
