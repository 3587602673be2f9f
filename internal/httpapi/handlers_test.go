package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/auth"
	"github.com/sdalgetty/funnel-app-sub003/internal/identity"
	"github.com/sdalgetty/funnel-app-sub003/internal/session"
	"github.com/sdalgetty/funnel-app-sub003/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	invitations *identity.InvitationService
	accounts    *account.InMemory
	auditStore  *audit.InMemory
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("FUNNEL_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	accounts := account.NewInMemory()
	identityStore := identity.NewMemoryStore()
	auditStore := audit.NewInMemory()
	persist := session.NewInMemory()
	events := stream.New()

	auditLog := audit.NewLog(auditStore)
	invitations := identity.NewInvitationService(identityStore, accounts, identity.WithSynchronousMail())
	impersonation := identity.NewController(identityStore, accounts, auditLog, persist)
	resolver := identity.NewResolver(invitations, impersonation, accounts, persist)

	api := New(ReadyProbe{}, "test", Deps{
		Accounts:      accounts,
		Invitations:   invitations,
		Impersonation: impersonation,
		Resolver:      resolver,
		AuditLog:      auditLog,
		Stream:        events,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:     srv.URL,
		client:      srv.Client(),
		t:           t,
		invitations: invitations,
		accounts:    accounts,
		auditStore:  auditStore,
	}
}

func (c *apiClient) request(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	return c.request(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) signup(email, password, name string) account.Account {
	c.t.Helper()
	resp := c.post("/v1/auth/signup", map[string]any{
		"email":        email,
		"password":     password,
		"display_name": name,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("signup status = %d", resp.StatusCode)
	}
	return decode[account.Account](c.t, resp)
}

func (c *apiClient) obtainToken(email, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

// createAdmin seeds an administrator straight into the store; there is
// deliberately no HTTP path for promotion.
func (c *apiClient) createAdmin(email, password string) account.Account {
	c.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	acc := &account.Account{Email: email, DisplayName: "Admin", IsAdmin: true, PasswordHash: hash}
	if err := c.accounts.Create(context.Background(), acc); err != nil {
		c.t.Fatalf("create admin: %v", err)
	}
	return *acc
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSignupAndTokenFlow(t *testing.T) {
	c := newTestAPI(t)

	acc := c.signup("owner@example.com", "password123", "Owner")
	if acc.ID == "" || acc.Email != "owner@example.com" {
		t.Fatalf("unexpected account: %+v", acc)
	}

	resp := c.post("/v1/auth/signup", map[string]any{
		"email":    "owner@example.com",
		"password": "password123",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", resp.StatusCode)
	}

	resp = c.post("/v1/auth/token", map[string]any{
		"email":    "owner@example.com",
		"password": "wrong-password",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials status = %d, want 401", resp.StatusCode)
	}

	token := c.obtainToken("owner@example.com", "password123")
	me := decode[identity.EffectiveIdentity](t, c.get("/v1/me", nil, token))
	if me.Mode != identity.ModeSelf || me.AccountID != acc.ID {
		t.Fatalf("unexpected identity: %+v", me)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/v1/me", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestShareInviteAcceptSwitchFlow(t *testing.T) {
	c := newTestAPI(t)

	owner := c.signup("owner@example.com", "password123", "Owner")
	ownerToken := c.obtainToken("owner@example.com", "password123")
	c.signup("guest@example.com", "password123", "Guest")
	guestToken := c.obtainToken("guest@example.com", "password123")

	resp := c.post("/v1/shares", map[string]any{"guest_email": "guest@example.com"}, ownerToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite status = %d", resp.StatusCode)
	}
	share := decode[identity.Share](t, resp)

	// Duplicate invite surfaces the pending share with 409.
	resp = c.post("/v1/shares", map[string]any{"guest_email": "guest@example.com"}, ownerToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate invite status = %d, want 409", resp.StatusCode)
	}

	// The raw token is not exposed over HTTP; pull it from the service layer
	// the way the mailer would have delivered it.
	inviteToken := shareTokenFor(t, c, owner.ID, share.ID)

	// Wrong account: a different signed-in email cannot consume the token.
	c.signup("other@example.com", "password123", "Other")
	otherToken := c.obtainToken("other@example.com", "password123")
	resp = c.post("/v1/shares/accept", map[string]any{"token": inviteToken}, otherToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("mismatched accept status = %d, want 403", resp.StatusCode)
	}

	resp = c.post("/v1/shares/accept", map[string]any{"token": inviteToken}, guestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Switch into the shared account; identity becomes view-only guest.
	resp = c.post("/v1/identity/switch", map[string]any{"owner_account_id": owner.ID}, guestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("switch status = %d", resp.StatusCode)
	}
	id := decode[identity.EffectiveIdentity](t, resp)
	if id.Mode != identity.ModeGuest || !id.ViewOnly || id.AccountID != owner.ID {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// Mutations are gated.
	resp = c.request(http.MethodPut, "/v1/profile", map[string]any{"display_name": "Sneaky"}, guestToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest mutation status = %d, want 403", resp.StatusCode)
	}

	// Back to self; mutations work again.
	resp = c.post("/v1/identity/self", nil, guestToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self status = %d", resp.StatusCode)
	}
	resp = c.request(http.MethodPut, "/v1/profile", map[string]any{"display_name": "Guest Renamed"}, guestToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self mutation status = %d", resp.StatusCode)
	}
	updated := decode[account.Account](t, resp)
	if updated.DisplayName != "Guest Renamed" {
		t.Fatalf("display name = %s", updated.DisplayName)
	}
}

// shareTokenFor digs the raw invitation token out of the store; tests stand in
// for the email the guest would otherwise read.
func shareTokenFor(t *testing.T, c *apiClient, ownerID, shareID string) string {
	t.Helper()
	issued, err := c.invitations.ListIssued(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("list issued: %v", err)
	}
	for _, s := range issued {
		if s.ID == shareID {
			return s.Token
		}
	}
	t.Fatalf("share %s not found", shareID)
	return ""
}

func TestRevokedShareCutsGuestOff(t *testing.T) {
	c := newTestAPI(t)

	owner := c.signup("owner@example.com", "password123", "Owner")
	ownerToken := c.obtainToken("owner@example.com", "password123")
	c.signup("guest@example.com", "password123", "Guest")
	guestToken := c.obtainToken("guest@example.com", "password123")

	resp := c.post("/v1/shares", map[string]any{"guest_email": "guest@example.com"}, ownerToken)
	share := decode[identity.Share](t, resp)
	inviteToken := shareTokenFor(t, c, owner.ID, share.ID)
	resp = c.post("/v1/shares/accept", map[string]any{"token": inviteToken}, guestToken)
	resp.Body.Close()
	resp = c.post("/v1/identity/switch", map[string]any{"owner_account_id": owner.ID}, guestToken)
	resp.Body.Close()

	// Only the owner may revoke.
	resp = c.request(http.MethodDelete, "/v1/shares/"+share.ID, nil, guestToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest revoke status = %d, want 403", resp.StatusCode)
	}

	resp = c.request(http.MethodDelete, "/v1/shares/"+share.ID, nil, ownerToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}

	// The guest falls back to self on the next resolve.
	me := decode[identity.EffectiveIdentity](t, c.get("/v1/me", nil, guestToken))
	if me.Mode != identity.ModeSelf || me.ViewOnly {
		t.Fatalf("guest still in guest view after revoke: %+v", me)
	}

	// Revoke is idempotent.
	resp = c.request(http.MethodDelete, "/v1/shares/"+share.ID, nil, ownerToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("second revoke status = %d", resp.StatusCode)
	}

	// Switching back in is rejected.
	resp = c.post("/v1/identity/switch", map[string]any{"owner_account_id": owner.ID}, guestToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("switch after revoke status = %d, want 403", resp.StatusCode)
	}
}
