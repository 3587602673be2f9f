package httpapi

import (
	"net/http"
	"strings"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/identity"
)

type profileUpdateRequest struct {
	DisplayName *string `json:"display_name"`
}

// handleProfile mutates the effective account's profile. Every write goes
// through the access gate: a guest in view-only mode is rejected, an
// impersonating admin writes to the target account and leaves an audit trail.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}

	id, err := a.resolver.Resolve(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if err := identity.Guard(id); err != nil {
		handleIdentityError(w, r, err)
		return
	}

	var req profileUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if trimmed == "" {
			writeError(w, r, http.StatusBadRequest, "display_name must not be blank")
			return
		}
		req.DisplayName = &trimmed
	}

	acc, err := a.accounts.UpdateProfile(r.Context(), id.AccountID, account.ProfileUpdate{
		DisplayName: req.DisplayName,
	})
	if err != nil {
		handleAccountError(w, r, err)
		return
	}

	if id.Mode == identity.ModeImpersonation {
		_ = a.auditLog.Append(r.Context(), &audit.Entry{
			ActorAccountID:  principalID,
			TargetAccountID: id.AccountID,
			Action:          audit.ActionEditData,
			SessionID:       id.ImpersonationSessionID,
			Details:         map[string]any{"field": "display_name"},
		})
	}
	writeJSON(w, http.StatusOK, acc)
}
