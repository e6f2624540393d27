package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/apperror"
	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/handler"
	"github.com/sakif/photovault/internal/model"
	"github.com/sakif/photovault/internal/service"
)

type fakeAccounts struct {
	gotInput    service.CreateUserInput
	gotEmail    string
	gotPassword string
	gotUsername string
	gotID       string
	gotGitHub   *auth.GitHubUser

	user  *model.User
	login *service.LoginResult
	err   error
}

func (f *fakeAccounts) BootstrapAdmin(_ context.Context, in service.CreateUserInput) (*model.User, error) {
	f.gotInput = in
	return f.user, f.err
}

func (f *fakeAccounts) CreateUser(_ context.Context, in service.CreateUserInput) (*model.User, error) {
	f.gotInput = in
	return f.user, f.err
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.login, f.err
}

func (f *fakeAccounts) LoginWithGitHub(_ context.Context, gh *auth.GitHubUser) (*service.LoginResult, error) {
	f.gotGitHub = gh
	return f.login, f.err
}

func (f *fakeAccounts) DeleteUser(_ context.Context, username, email, password string) error {
	f.gotUsername, f.gotEmail, f.gotPassword = username, email, password
	return f.err
}

func (f *fakeAccounts) GetUser(_ context.Context, id string) (*model.User, error) {
	f.gotID = id
	return f.user, f.err
}

func userRouter(t *testing.T, accounts handler.UserAccounts) (http.Handler, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	h := handler.NewUserHandler(accounts, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	r.Route("/users", func(r chi.Router) {
		r.Post("/bootstrap", h.HandleBootstrap)
		r.Post("/login", h.HandleLogin)
		r.Delete("/delete", h.HandleDelete)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/create", h.HandleCreate)
			r.Get("/me", h.HandleMe)
		})
	})
	return r, tokens
}

// ============================================================
// BOOTSTRAP / CREATE
// ============================================================

func TestHandleBootstrap(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"first admin", nil, http.StatusCreated, ""},
		{"admin exists", apperror.AdminAlreadyExists(), http.StatusForbidden, "admin_already_exists"},
		{"missing field", apperror.MissingField("email"), http.StatusBadRequest, "missing_field"},
		{"duplicate", apperror.Conflict("user", "email"), http.StatusConflict, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccounts{user: &model.User{ID: "u1", Username: "admin", PasswordHash: "secret-hash"}, err: tt.err}
			router, _ := userRouter(t, accounts)

			req := httptest.NewRequest(http.MethodPost, "/users/bootstrap",
				strings.NewReader(`{"name":"Admin","email":"admin@example.com","username":"admin","password":"pw"}`))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "admin@example.com", accounts.gotInput.Email)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decodeError(t, rr).Error)
				return
			}
			assert.NotContains(t, rr.Body.String(), "secret-hash", "password hash must never be serialized")
		})
	}
}

func TestHandleCreate_RequiresToken(t *testing.T) {
	accounts := &fakeAccounts{user: &model.User{ID: "u2"}}
	router, tokens := userRouter(t, accounts)
	body := `{"name":"B","email":"b@example.com","username":"b","password":"pw"}`

	req := httptest.NewRequest(http.MethodPost, "/users/create", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, accounts.gotInput.Email)

	req = httptest.NewRequest(http.MethodPost, "/users/create", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearer(t, tokens, "u1"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "b@example.com", accounts.gotInput.Email)
}

// ============================================================
// LOGIN / DELETE / ME
// ============================================================

func TestHandleLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		accounts := &fakeAccounts{login: &service.LoginResult{Token: "jwt", Username: "alice", UserID: "u1"}}
		router, _ := userRouter(t, accounts)

		req := httptest.NewRequest(http.MethodPost, "/users/login",
			strings.NewReader(`{"email":"alice@example.com","password":"pw"}`))
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"Login successful","token":"jwt","username":"alice","userId":"u1"}`, rr.Body.String())
		assert.Equal(t, "alice@example.com", accounts.gotEmail)
		assert.Equal(t, "pw", accounts.gotPassword)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		router, _ := userRouter(t, &fakeAccounts{err: apperror.InvalidCredentials()})

		req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid_credentials", decodeError(t, rr).Error)
	})
}

func TestHandleDelete_User(t *testing.T) {
	accounts := &fakeAccounts{}
	router, _ := userRouter(t, accounts)

	req := httptest.NewRequest(http.MethodDelete, "/users/delete",
		strings.NewReader(`{"usernameToDelete":"alice","email":"alice@example.com","password":"pw"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", accounts.gotUsername)
	assert.Equal(t, "alice@example.com", accounts.gotEmail)
	assert.Equal(t, "pw", accounts.gotPassword)
}

func TestHandleMe(t *testing.T) {
	accounts := &fakeAccounts{user: &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}}
	router, tokens := userRouter(t, accounts)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+bearer(t, tokens, "u1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", accounts.gotID)

	var got model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "alice", got.Username)
}

// ============================================================
// ERROR MAPPING
// ============================================================

func TestErrorStatusMapping(t *testing.T) {
	missingRecord := apperror.NotFound("photo", "p1")

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperror.ValidationFailed("email", "bad"), http.StatusBadRequest},
		{"metadata extraction", apperror.MetadataExtractionFailed(nil), http.StatusBadRequest},
		{"expired token", apperror.ExpiredToken(nil), http.StatusForbidden},
		{"not found", apperror.NotFound("user", "x"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("loading user: %w", apperror.NotFound("user", "x")), http.StatusNotFound},
		{"lock unavailable", apperror.LockUnavailable("photo:1", nil), http.StatusServiceUnavailable},
		{"blob write", apperror.BlobWriteFailed("x", nil), http.StatusInternalServerError},
		{"plain error", assert.AnError, http.StatusInternalServerError},

		// A cause never decides the status. These must stay 500 even though
		// errors.Is(err, apperror.ErrNotFound) is true for them.
		{"rollback failed over not found",
			apperror.RollbackFailed("p1", errors.Join(assert.AnError, missingRecord)), http.StatusInternalServerError},
		{"record write failed over not found",
			apperror.RecordWriteFailed("failed to update photo", missingRecord), http.StatusInternalServerError},
		{"partial delete over not found",
			apperror.PartialDeleteFailure("p1", "b1", missingRecord), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, tokens := userRouter(t, &fakeAccounts{err: tt.err})

			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			req.Header.Set("Authorization", "Bearer "+bearer(t, tokens, "u1"))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, apperror.KindOf(tt.err), decodeError(t, rr).Error)
		})
	}
}
