package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/service"
)

// UserAccounts is the slice of service.UserService the HTTP layer uses.
type UserAccounts interface {
	BootstrapAdmin(ctx context.Context, in service.CreateUserInput) (*model.User, error)
	CreateUser(ctx context.Context, in service.CreateUserInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.LoginResult, error)
	DeleteUser(ctx context.Context, username, email, password string) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// UserHandler manages account endpoints.
//
// ROUTES:
//   - POST   /users/bootstrap → first admin, refused once any user exists
//   - POST   /users/create    → new account (requires a valid token)
//   - POST   /users/login     → email + password, returns a token
//   - DELETE /users/delete    → username + email + password must agree
//   - GET    /users/me        → the caller's profile
type UserHandler struct {
	users  UserAccounts
	logger *slog.Logger
}

func NewUserHandler(users UserAccounts, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type userCreatedResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	*service.LoginResult
}

type deleteUserRequest struct {
	UsernameToDelete string `json:"usernameToDelete"`
	Email            string `json:"email"`
	Password         string `json:"password"`
}

// HandleBootstrap creates the first (admin) account.
//
// HTTP: POST /users/bootstrap  body: {"name","email","username","password"}
func (h *UserHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.BootstrapAdmin(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userCreatedResponse{Message: "Admin user created successfully", User: user})
}

// HandleCreate creates an account on behalf of an authenticated caller.
//
// HTTP: POST /users/create  (auth required)
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	callerID, _ := auth.UserIDFromContext(r.Context())
	h.logger.Info("user created", slog.String("user_id", user.ID), slog.String("created_by", callerID))
	writeJSON(w, http.StatusCreated, userCreatedResponse{Message: "User created successfully", User: user})
}

// HandleLogin exchanges email + password for a token.
//
// HTTP: POST /users/login  body: {"email","password"}
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login successful", LoginResult: result})
}

// HandleDelete removes an account. The username, email and password must
// all belong to the same user. The user's photos are left in place.
//
// HTTP: DELETE /users/delete  body: {"usernameToDelete","email","password"}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.DeleteUser(r.Context(), req.UsernameToDelete, req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// HandleMe returns the authenticated caller's profile.
//
// HTTP: GET /users/me  (auth required)
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Warn("HandleMe: user lookup failed", slog.String("user_id", userID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
