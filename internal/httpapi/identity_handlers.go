package httpapi

import (
	"net/http"
	"strings"
)

type switchRequest struct {
	OwnerAccountID string `json:"owner_account_id"`
}

// handleMe returns the current effective identity. It resolves fresh on every
// call, so a share revoked seconds ago is already gone from the response.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := a.resolver.Refresh(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// handleIdentitySwitch activates guest view over a shared account.
func (a *API) handleIdentitySwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}

	var req switchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	owner := strings.TrimSpace(req.OwnerAccountID)
	if owner == "" {
		writeError(w, r, http.StatusBadRequest, "owner_account_id is required")
		return
	}

	id, err := a.resolver.SwitchToSharedAccount(r.Context(), principalID, owner)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// handleIdentitySelf returns the principal to their own account. Succeeds
// even when no guest view is active.
func (a *API) handleIdentitySelf(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	id, err := a.resolver.SwitchToOwnAccount(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}
