// Package service holds account business logic.
//
// UserService sits between the user handlers and the repository/auth
// utilities:
//
//	UserHandler (HTTP) → UserService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It does NOT set cookies or read requests; those are HTTP concerns.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/lock"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/repository"
)

type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	locker    lock.Locker
	logger    *slog.Logger
}

// NewUserService wires the account service. A nil locker means lock.Noop.
func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	locker lock.Locker,
	logger *slog.Logger,
) *UserService {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		locker:    locker,
		logger:    logger,
	}
}

// CreateUserInput is the sign-up payload shared by bootstrap and create.
type CreateUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult bundles the issued token with the identity the client displays.
type LoginResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// BootstrapAdmin creates the first account, and only the first.
//
// It is the one unauthenticated way to create a user, so it must refuse as
// soon as ANY user exists. Count-then-insert is not atomic; with a locker
// configured the "bootstrap" lease serializes concurrent attempts.
func (s *UserService) BootstrapAdmin(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := validateUserInput(&in); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "bootstrap")
	if err != nil {
		return nil, apperror.LockUnavailable("bootstrap", err)
	}
	defer release()

	n, err := s.users.CountAll(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to check existing users", err)
	}
	if n > 0 {
		s.logger.Warn("bootstrap refused: users already exist", "count", n)
		return nil, apperror.AdminAlreadyExists()
	}

	user, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin user bootstrapped", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// CreateUser adds an account. The handler only routes authenticated callers here.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := validateUserInput(&in); err != nil {
		return nil, err
	}
	user, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *UserService) create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, apperror.Internal("failed to create user", err)
	}
	return user, nil
}

// Login checks email + password and issues a token.
//
// An unknown email and a wrong password produce the SAME error, so the
// endpoint cannot be used to discover which emails have accounts.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.MissingField("email")
	}
	if password == "" {
		return nil, apperror.MissingField("password")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("login failed: unknown email")
			return nil, apperror.InvalidCredentials()
		}
		return nil, apperror.Internal("failed to load user", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed: wrong password", "user_id", user.ID)
			return nil, apperror.InvalidCredentials()
		}
		return nil, apperror.Internal("failed to verify password", err)
	}

	return s.issue(user)
}

// LoginWithGitHub signs in the account whose email matches the GitHub
// user's verified primary email. It never creates accounts.
func (s *UserService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*LoginResult, error) {
	if gh == nil || gh.Email == "" {
		return nil, apperror.Forbidden("GitHub account has no verified email")
	}

	user, err := s.users.FindByEmail(ctx, gh.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("no photovault account uses this GitHub email")
		}
		return nil, apperror.Internal("failed to load user", err)
	}

	s.logger.Info("user authenticated via GitHub", "user_id", user.ID, "github_login", gh.Login)
	return s.issue(user)
}

func (s *UserService) issue(user *model.User) (*LoginResult, error) {
	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return nil, apperror.Internal("failed to issue token", err)
	}
	return &LoginResult{Token: token, Username: user.Username, UserID: user.ID}, nil
}

// DeleteUser removes an account after a username + email + password match.
//
// A username/email pair that doesn't belong to the same account is reported
// as NotFound, indistinguishable from an unknown username. The user's
// photos are left in place.
func (s *UserService) DeleteUser(ctx context.Context, username, email, password string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return apperror.MissingField("usernameToDelete")
	case strings.TrimSpace(email) == "":
		return apperror.MissingField("email")
	case password == "":
		return apperror.MissingField("password")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return apperror.Internal("failed to load user", err)
	}
	if !strings.EqualFold(user.Email, strings.TrimSpace(email)) {
		s.logger.Info("user delete refused: email does not match username", "username", username)
		return apperror.NotFound("user", username)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.InvalidCredentials()
		}
		return apperror.Internal("failed to verify password", err)
	}

	if err := s.users.DeleteByUsername(ctx, username); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return apperror.Internal("failed to delete user", err)
	}

	s.logger.Info("user deleted", "user_id", user.ID, "username", username)
	return nil
}

// GetUser returns the account for id (GET /users/me).
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.MissingField("userId")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return user, nil
}

func validateUserInput(in *CreateUserInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	switch {
	case in.Name == "":
		return apperror.MissingField("name")
	case in.Email == "":
		return apperror.MissingField("email")
	case in.Username == "":
		return apperror.MissingField("username")
	case in.Password == "":
		return apperror.MissingField("password")
	}

	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperror.ValidationFailed("email", "invalid email format")
	}
	return nil
}
