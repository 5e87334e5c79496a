package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type DBLayer interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type TokenIssuer interface {
	Issue(userID string, role models.Role) (string, error)
}

type UserService struct {
	DB     DBLayer
	Tokens TokenIssuer
	Logger *logger.Logger
	now    func() time.Time

	// subjects already known to have a local row
	provisioned sync.Map
}

func NewUserService(db DBLayer, tokens TokenIssuer, log *logger.Logger) *UserService {
	return &UserService{DB: db, Tokens: tokens, Logger: log, now: time.Now}
}

// Register creates a customer account and signs the caller in.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.create(ctx, req.Username, req.Email, req.Password, models.RoleCustomer)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("AUTH", fmt.Sprintf("Registered user %s (%s)", user.ID, user.Username))

	return s.respond(user)
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	ident := req.Identifier()
	if ident == "" || req.Password == "" {
		return nil, models.InvalidInput("Email or username and password are required.")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(ident, "@") {
		user, err = s.DB.GetUserByEmail(ctx, ident)
	} else {
		user, err = s.DB.GetUserByUsername(ctx, ident)
	}
	if errors.Is(err, models.ErrUserNotFound) {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("unknown identifier %q", ident))
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if user.PasswordHash == "" {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("password login for externally managed user %s", user.ID))
		return nil, models.ErrInvalidCredentials
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		s.Logger.LogSecurity("LOGIN_FAILED", fmt.Sprintf("bad password for user %s", user.ID))
		return nil, models.ErrInvalidCredentials
	}

	return s.respond(user)
}

// EnsureAdmin returns the user registered under email, creating an admin
// account when none exists. Used for seeding.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	user, err := s.DB.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return nil, err
	}
	return s.create(ctx, username, email, password, models.RoleAdmin)
}

// EnsureSubject creates a local user keyed by an external identity's subject
// so bookings made under it can be mailed and shown in rosters. Identities
// without an e-mail claim are left alone. The row has no password.
func (s *UserService) EnsureSubject(ctx context.Context, id models.Identity) error {
	if id.UserID == "" || id.Email == "" {
		return nil
	}
	if _, ok := s.provisioned.Load(id.UserID); ok {
		return nil
	}

	_, err := s.DB.GetUserByID(ctx, id.UserID)
	if err == nil {
		s.provisioned.Store(id.UserID, struct{}{})
		return nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return err
	}

	username := strings.TrimSpace(id.Username)
	if username == "" {
		username = id.UserID
	}
	role := id.Role
	if role == "" {
		role = models.RoleCustomer
	}
	user := &models.User{
		ID:        id.UserID,
		Username:  username,
		Email:     strings.ToLower(strings.TrimSpace(id.Email)),
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.DB.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, models.ErrUserExists) {
			return err
		}
		// a concurrent request won the insert, or a local account already
		// holds the username or e-mail
		if _, lookupErr := s.DB.GetUserByID(ctx, id.UserID); lookupErr != nil {
			s.Logger.Warn("AUTH", fmt.Sprintf("Cannot provision subject %s: %v", id.UserID, err))
			return nil
		}
	} else {
		s.Logger.Info("AUTH", fmt.Sprintf("Provisioned local user for subject %s (%s)", user.ID, user.Email))
	}
	s.provisioned.Store(id.UserID, struct{}{})
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.DB.GetUserByID(ctx, id)
}

// RecipientEmail resolves a user id to the address notifications go to.
func (s *UserService) RecipientEmail(ctx context.Context, userID string) (string, error) {
	user, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *UserService) create(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.DB.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// respond signs user in. Without an issuer (OIDC-only deployments) the
// token is left empty.
func (s *UserService) respond(user *models.User) (*models.AuthResponse, error) {
	if s.Tokens == nil {
		return &models.AuthResponse{User: user.Summary()}, nil
	}
	token, err := s.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &models.AuthResponse{User: user.Summary(), Token: token}, nil
}
