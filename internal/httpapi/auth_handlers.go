package httpapi

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"slotswapper.dev/internal/audit"
	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/ids"
	"slotswapper.dev/internal/swap"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         swap.UserRef `json:"user"`
}

const minPasswordLength = 8

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	u := &swap.User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.Users().Create(r.Context(), u); err != nil {
		if err == swap.ErrAlreadyExists {
			writeError(w, r, http.StatusBadRequest, "email is already registered")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"user_id": u.ID,
		"email":   email,
	})

	writeData(w, http.StatusCreated, "User registered successfully", u.Ref())
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := a.store.Users().FindByEmail(r.Context(), email)
	if err != nil {
		// Indistinguishable from a wrong password on purpose.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	session, err := a.issueSession(w, r, u)
	if err != nil {
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": u.ID,
	})

	writeData(w, http.StatusOK, "Login successful", session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	now := time.Now().UTC()
	next, rec, err := auth.RotateRefreshToken(r.Context(), a.store.RefreshTokens(), req.RefreshToken, now, auth.DefaultRefreshTTL)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	u, err := a.store.Users().Find(r.Context(), rec.UserID)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	access, err := auth.GenerateToken(u.ID, u.IsAdmin, auth.DefaultAccessTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": u.ID,
	})

	writeData(w, http.StatusOK, "Token refreshed", sessionResponse{
		AccessToken:  access,
		RefreshToken: next,
		User:         u.Ref(),
	})
}

// issueSession mints the access/refresh pair for a verified user. On failure
// the error response has already been written.
func (a *API) issueSession(w http.ResponseWriter, r *http.Request, u *swap.User) (*sessionResponse, error) {
	access, err := auth.GenerateToken(u.ID, u.IsAdmin, auth.DefaultAccessTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return nil, err
	}
	now := time.Now().UTC()
	refresh, rec, err := auth.NewRefreshToken(u.ID, now, auth.DefaultRefreshTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return nil, err
	}
	if err := a.store.RefreshTokens().Create(r.Context(), rec); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return nil, err
	}
	return &sessionResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.Ref(),
	}, nil
}
