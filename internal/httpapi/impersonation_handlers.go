package httpapi

import (
	"net/http"
	"strings"
)

type impersonateRequest struct {
	TargetAccountID string `json:"target_account_id"`
}

func (a *API) handleImpersonation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.startImpersonation(w, r)
	case http.MethodDelete:
		a.stopImpersonation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) startImpersonation(w http.ResponseWriter, r *http.Request) {
	adminID, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var req impersonateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := strings.TrimSpace(req.TargetAccountID)
	if target == "" {
		writeError(w, r, http.StatusBadRequest, "target_account_id is required")
		return
	}

	sess, err := a.impersonation.Start(r.Context(), adminID, target)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	// Mutation first, recompute second: the identity context must reflect
	// the new session before the response goes out.
	id, err := a.resolver.Refresh(r.Context(), adminID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session":  sess,
		"identity": id,
	})
}

func (a *API) stopImpersonation(w http.ResponseWriter, r *http.Request) {
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.impersonation.StopForAdmin(r.Context(), principalID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	id, err := a.resolver.Refresh(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// handleImpersonationTouch is the activity heartbeat. It stays cheap: no
// audit entry, no body, just a timer re-arm.
func (a *API) handleImpersonationTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	if err := a.impersonation.Touch(r.Context(), principalID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
