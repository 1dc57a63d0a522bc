package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dnafasttrack/custody-server/internal/models"
	"github.com/dnafasttrack/custody-server/internal/store"
)

// AuthService handles accounts: web login with bcrypt-hashed passwords and
// JWT issuance, admin provisioning, and partner-lab API token authorization.
type AuthService struct {
	store     store.Store
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *zap.SugaredLogger
}

// NewAuthService creates a new auth service.
func NewAuthService(st store.Store, jwtSecret string, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{
		store:     st,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
		logger:    logger,
	}
}

// Login checks credentials and returns a signed bearer token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}

	claims := jwt.MapClaims{
		"sub":  u.Email,
		"name": u.Name,
		"role": u.Role,
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Infow("User logged in", "email", u.Email, "role", u.Role)
	return &models.LoginResponse{Token: token, User: *u}, nil
}

// CreateUser provisions an account. Lab accounts are issued an opaque API
// token for the partner-lab API on creation.
func (s *AuthService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, "", &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if len(req.Password) < 8 {
		return nil, "", &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	switch req.Role {
	case models.RoleAdmin, models.RoleOfficer, models.RoleLab:
	default:
		return nil, "", &ValidationError{Field: "role", Reason: "must be admin, officer or lab"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	apiToken := ""
	if req.Role == models.RoleLab {
		apiToken = uuid.NewString()
	}
	name := req.Name
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	u := models.User{
		Email:        email,
		Name:         name,
		Role:         req.Role,
		PasswordHash: string(hash),
		APIToken:     apiToken,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, "", &ValidationError{Field: "email", Reason: "already exists"}
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	s.logger.Infow("User created", "email", u.Email, "role", u.Role)
	return &u, apiToken, nil
}

// Register is officer self-registration: fixed role, no API token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	u, _, err := s.CreateUser(ctx, models.CreateUserRequest{
		Email:    email,
		Role:     models.RoleOfficer,
		Password: password,
	})
	return u, err
}

// AuthorizeAPIToken resolves a partner-lab API token to its lab user.
// Unknown tokens and non-lab accounts both come back ErrUnauthorized so the
// API does not leak which tokens exist.
func (s *AuthService) AuthorizeAPIToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.store.FindUserByAPIToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup api token: %w", err)
	}
	if u.Role != models.RoleLab {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// BootstrapAdmin seeds the first admin account when the user table is empty.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, password string) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, _, err = s.CreateUser(ctx, models.CreateUserRequest{
		Email:    email,
		Name:     "Admin",
		Role:     models.RoleAdmin,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Infow("Bootstrapped admin account", "email", email)
	return nil
}

// ListUsers returns all accounts (admin surface).
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// CreateLab registers a partner laboratory (admin surface).
func (s *AuthService) CreateLab(ctx context.Context, req models.CreateLabRequest) (*models.Lab, error) {
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	l := models.Lab{Name: req.Name, ContactEmail: req.ContactEmail, IsActive: true}
	if err := s.store.CreateLab(ctx, &l); err != nil {
		return nil, fmt.Errorf("create lab: %w", err)
	}
	return &l, nil
}

// ListLabs returns all partner laboratories.
func (s *AuthService) ListLabs(ctx context.Context) ([]models.Lab, error) {
	return s.store.ListLabs(ctx)
}
