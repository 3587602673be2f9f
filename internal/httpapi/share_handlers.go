package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sdalgetty/funnel-app-sub003/internal/auth"
	"github.com/sdalgetty/funnel-app-sub003/internal/identity"
)

type inviteRequest struct {
	GuestEmail string `json:"guest_email"`
}

type acceptRequest struct {
	Token string `json:"token"`
}

type shareListResponse struct {
	Issued  []identity.Share `json:"issued"`
	GuestOf []identity.Share `json:"guest_of"`
}

type invitationView struct {
	OwnerName  string               `json:"owner_name"`
	GuestEmail string               `json:"guest_email"`
	Status     identity.ShareStatus `json:"status"`
	Role       string               `json:"role"`
}

func (a *API) handleSharesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createShare(w, r)
	case http.MethodGet:
		a.listShares(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createShare(w http.ResponseWriter, r *http.Request) {
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	share, err := a.invitations.Invite(r.Context(), principalID, req.GuestEmail)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateInvitation) {
			// Surface the existing pending share instead of a bare conflict.
			w.Header().Set("Location", fmt.Sprintf("/v1/shares/%s", share.ID))
			writeJSON(w, http.StatusConflict, share)
			return
		}
		handleIdentityError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/shares/%s", share.ID))
	writeJSON(w, http.StatusCreated, share)
}

func (a *API) listShares(w http.ResponseWriter, r *http.Request) {
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	issued, err := a.invitations.ListIssued(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	guestOf, err := a.invitations.ListAccepted(r.Context(), principalID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareListResponse{Issued: issued, GuestOf: guestOf})
}

// handleShareResource routes /v1/shares/{id} and /v1/shares/invitations/{token}.
func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/shares/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if rest, ok := strings.CutPrefix(path, "invitations/"); ok {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getInvitation(w, r, rest)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		a.revokeShare(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodDelete)
	}
}

// getInvitation is the public landing lookup behind the email link. It never
// mutates the share: a pending invitation stays pending until accepted.
func (a *API) getInvitation(w http.ResponseWriter, r *http.Request, token string) {
	share, err := a.invitations.FindByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) || errors.Is(err, identity.ErrInvalidInvitation) {
			writeError(w, r, http.StatusNotFound, "invitation not found")
			return
		}
		handleIdentityError(w, r, err)
		return
	}

	ownerName := share.OwnerAccountID
	if owner, err := a.accounts.Find(r.Context(), share.OwnerAccountID); err == nil && owner.DisplayName != "" {
		ownerName = owner.DisplayName
	}
	writeJSON(w, http.StatusOK, invitationView{
		OwnerName:  ownerName,
		GuestEmail: share.GuestEmail,
		Status:     share.Status,
		Role:       share.Role,
	})
}

func (a *API) handleShareAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	email, _ := auth.PrincipalEmailFromContext(r.Context())

	var req acceptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	share, err := a.invitations.Accept(r.Context(), req.Token, principalID, email)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if _, err := a.resolver.Refresh(r.Context(), principalID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

func (a *API) revokeShare(w http.ResponseWriter, r *http.Request, shareID string) {
	principalID, ok := a.principal(w, r)
	if !ok {
		return
	}
	share, err := a.invitations.Revoke(r.Context(), principalID, shareID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	// The guest may be inside this dashboard right now; recompute so they
	// fall back to their own account immediately.
	if share.GuestAccountID != "" {
		if _, err := a.resolver.Refresh(r.Context(), share.GuestAccountID); err != nil {
			handleIdentityError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
