package httpapi

import (
	"net/http"
	"strings"

	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
)

// handleAccountResource serves GET /v1/accounts/{id}, the admin lookup behind
// the impersonation picker. Each lookup lands in the access log as a
// view_user entry.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/accounts/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	adminID, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	acc, err := a.accounts.Find(r.Context(), path)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}

	_ = a.auditLog.Append(r.Context(), &audit.Entry{
		ActorAccountID:  adminID,
		TargetAccountID: acc.ID,
		Action:          audit.ActionViewUser,
	})
	writeJSON(w, http.StatusOK, acc)
}
