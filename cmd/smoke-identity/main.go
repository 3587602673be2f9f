package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// End-to-end smoke run against a live API: owner signs up and invites a
// guest, the guest signs up, accepts, signs in again and must land in guest
// view over the owner's account.
func main() {
	base := os.Getenv("FUNNEL_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}}

	suffix := time.Now().UnixNano()
	ownerEmail := fmt.Sprintf("owner-%d@smoke.local", suffix)
	guestEmail := fmt.Sprintf("guest-%d@smoke.local", suffix)
	password := "smoke-password-1"

	owner := c.signup(ownerEmail, password, "Smoke Owner")
	ownerToken := c.token(ownerEmail, password)

	share := c.post(ownerToken, "/v1/shares", map[string]any{"guest_email": guestEmail}, http.StatusCreated)

	// The API never returns raw invitation tokens; copy one from the log
	// mailer line into FUNNEL_SMOKE_TOKEN before running the guest half.
	shareToken := os.Getenv("FUNNEL_SMOKE_TOKEN")
	if shareToken == "" {
		log.Fatal("no invitation token surfaced; set FUNNEL_SMOKE_TOKEN from the log mailer output")
	}

	c.signup(guestEmail, password, "Smoke Guest")
	guestToken := c.token(guestEmail, password)
	c.post(guestToken, "/v1/shares/accept", map[string]any{"token": shareToken}, http.StatusOK)

	// Fresh sign-in should auto-select the accepted share.
	guestToken = c.token(guestEmail, password)
	me := c.get(guestToken, "/v1/me", http.StatusOK)
	if me["mode"] != "guest" || me["view_only"] != true {
		log.Fatalf("expected guest view after sign-in, got %v", me)
	}
	if me["account_id"] != owner["id"] {
		log.Fatalf("guest resolved to %v, want owner %v", me["account_id"], owner["id"])
	}

	fmt.Printf("✅ identity smoke test passed: share=%v owner=%v\n", share["id"], owner["id"])
}

type client struct {
	base string
	http *http.Client
}

func (c *client) signup(email, password, name string) map[string]any {
	return c.post("", "/v1/auth/signup", map[string]any{
		"email":        email,
		"password":     password,
		"display_name": name,
	}, http.StatusCreated)
}

func (c *client) token(email, password string) string {
	resp := c.post("", "/v1/auth/token", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	token, _ := resp["token"].(string)
	if token == "" {
		log.Fatalf("no token for %s", email)
	}
	return token
}

func (c *client) post(token, path string, body map[string]any, wantStatus int) map[string]any {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token, path, wantStatus)
}

func (c *client) get(token, path string, wantStatus int) map[string]any {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		log.Fatalf("build request %s: %v", path, err)
	}
	return c.do(req, token, path, wantStatus)
}

func (c *client) do(req *http.Request, token, path string, wantStatus int) map[string]any {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d (%v)", req.Method, path, resp.StatusCode, wantStatus, out)
	}
	return out
}
