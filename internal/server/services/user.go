// Package services contains server-side business logic. This file implements
// UserService, which handles login, issuing/refreshing JWTs plus
// server-stored refresh tokens, and the admin-only user management.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/auth"
	"github.com/dmitrijs2005/taskkeeper/internal/server/config"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// NewUser is the input of user creation.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UserService provides authentication-related operations:
// - Login: verify credentials and mint tokens
// - RefreshToken: rotate refresh tokens and mint new access tokens
// - Authenticate: map an access token to the current actor
type UserService struct {
	tx                           dbx.Transactor
	repomanager                  repomanager.RepositoryManager
	hasher                       *auth.PasswordHasher
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		tx:                           tx,
		repomanager:                  m,
		hasher:                       auth.NewPasswordHasher(bcrypt.DefaultCost),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Login verifies email and password and, on success, returns a new
// TokenPair and the user. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil, common.Errorf(common.ErrorValidation, "please provide an email and password")
	}

	user, err := s.repomanager.Users(s.tx.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, invalidCredentials()
		}
		return nil, nil, fmt.Errorf("error searching user: %w", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, nil, fmt.Errorf("error verifying password: %w", err)
	}
	if !ok {
		return nil, nil, invalidCredentials()
	}

	// drop this user's expired sessions
	if _, err := s.repomanager.RefreshTokens(s.tx.Conn()).DeleteExpired(ctx, user.ID, time.Now()); err != nil {
		return nil, nil, fmt.Errorf("error purging refresh tokens: %w", err)
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.tx.Conn())
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func invalidCredentials() error {
	return common.Errorf(common.ErrorUnauthorized, "invalid credentials")
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.Errorf(common.ErrorValidation, "refresh token is required")
	}

	token, err := s.repomanager.RefreshTokens(s.tx.Conn()).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorUnauthorized, "invalid refresh token")
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes refreshToken. An empty or unknown token is not an error.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repomanager.RefreshTokens(s.tx.Conn()).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// Authenticate resolves an access token to the current actor, reloading
// the user so role changes and deletions take effect immediately.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (models.Actor, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return models.Actor{}, err
	}

	user, err := s.repomanager.Users(s.tx.Conn()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Actor{}, common.Errorf(common.ErrorUnauthorized, "user no longer exists")
		}
		return models.Actor{}, fmt.Errorf("error loading user: %w", err)
	}

	return models.Actor{ID: user.ID, Role: user.Role}, nil
}

// Register creates a user on behalf of actor, who must be an admin.
func (s *UserService) Register(ctx context.Context, actor models.Actor, in NewUser) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, common.Errorf(common.ErrorForbidden, "user role %s is not authorized to access this route", actor.Role)
	}
	return s.CreateUser(ctx, in)
}

// CreateUser validates in and stores a new user. It performs no
// authorization and backs both Register and the operator CLI.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	if name == "" {
		return nil, common.Errorf(common.ErrorValidation, "please add a name")
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, common.Errorf(common.ErrorValidation, "please add a valid email")
	}
	if !models.ValidRole(role) {
		return nil, common.Errorf(common.ErrorValidation, "unknown role %q", role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	user := &models.User{ID: id, Name: name, Email: email, PasswordHash: hash, Role: role}
	created, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.Errorf(common.ErrorAlreadyExists, "user with email %s already exists", email)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// Get returns the user with id. Malformed ids are reported as not found.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, userNotFound(id)
	}
	user, err := s.repomanager.Users(s.tx.Conn()).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, userNotFound(id)
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	list, err := s.repomanager.Users(s.tx.Conn()).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return list, nil
}

// Delete removes user id. Tasks keep their references to the user.
func (s *UserService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !actor.IsAdmin() {
		return common.Errorf(common.ErrorForbidden, "user role %s is not authorized to access this route", actor.Role)
	}
	if !validID(id) {
		return userNotFound(id)
	}
	if err := s.repomanager.Users(s.tx.Conn()).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return userNotFound(id)
		}
		return fmt.Errorf("error deleting user: %w", err)
	}
	return nil
}

func userNotFound(id string) error {
	return common.Errorf(common.ErrorNotFound, "user not found with id %s", id)
}

// --- helpers below ---

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
