package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/auth"
	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID string    `json:"account_id"`
}

const tokenTTL = 12 * time.Hour

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

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "signup failed")
		return
	}

	now := time.Now().UTC()
	acc := &account.Account{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.accounts.Create(r.Context(), acc); err != nil {
		handleAccountError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"account_id": acc.ID,
		"email":      acc.Email,
	})
	writeJSON(w, http.StatusCreated, acc)
}

// handleAuthToken is the sign-in endpoint. Besides issuing the JWT it
// restores identity state: a persisted guest view or impersonation session is
// re-validated, and a pure guest is auto-switched to the share they accepted
// most recently.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	acc, err := a.accounts.FindByEmail(r.Context(), email)
	if err != nil {
		// Same response for unknown email and bad password.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(acc.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(acc.ID, acc.Email, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	identity, err := a.resolver.Restore(r.Context(), acc.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "identity restore failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"account_id": acc.ID,
		"mode":       string(identity.Mode),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		AccountID: acc.ID,
	})
}

// handleSignout tears down server-side identity state. Any open impersonation
// session ends here; guest view persists for the next sign-in.
func (a *API) handleSignout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.resolver.SignOut(r.Context(), principalID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signout", map[string]any{
		"account_id": principalID,
	})
	w.WriteHeader(http.StatusNoContent)
}
