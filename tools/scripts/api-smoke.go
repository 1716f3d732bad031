// Package main provides a CI-friendly HTTP smoke test for TrustBridge.
//
// It validates:
//   - register -> token issued
//   - login -> token rotated (old token rejected)
//   - me resolves the session
//   - transaction upsert is replace-by-key
//   - transaction listing is account-scoped
//   - logout invalidates the session
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type envelope struct {
	OK    bool   `json:"ok"`
	Err   string `json:"err"`
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Transactions []map[string]any `json:"transactions"`
}

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{Timeout: *timeout},
		timeout: *timeout,
		verbose: *verbose,
	}

	username := fmt.Sprintf("smoke_%06d", rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1_000_000))
	const password = "smoke-pass-1"

	ctx := context.Background()

	// Step 1: register.
	reg, err := c.post(ctx, "/api/register", "", map[string]string{
		"username": username, "password": password,
	})
	step("register", err)
	if !reg.OK || reg.Token == "" {
		fatalf("register: ok=%v err=%q", reg.OK, reg.Err)
	}
	regToken := reg.Token

	// Step 2: login rotates the token.
	lg, err := c.post(ctx, "/api/login", "", map[string]string{
		"username": username, "password": password,
	})
	step("login", err)
	if !lg.OK || lg.Token == "" {
		fatalf("login: ok=%v err=%q", lg.OK, lg.Err)
	}
	if lg.Token == regToken {
		fatalf("login: token was not rotated")
	}

	// Step 3: the registration token must now be dead.
	if resp, err := c.get(ctx, "/api/me", regToken); err != nil {
		fatalf("me with stale token: %v", err)
	} else if resp.OK {
		fatalf("me with stale token: expected rejection, got ok")
	}
	step("stale token rejected", nil)

	// Step 4: me with the fresh token.
	me, err := c.get(ctx, "/api/me", lg.Token)
	step("me", err)
	if !me.OK || me.User.Username == "" {
		fatalf("me: ok=%v err=%q", me.OK, me.Err)
	}

	// Step 5: upsert the same key twice; the second payload wins.
	for _, amt := range []int{5, 9} {
		up, err := c.post(ctx, "/api/transactions", lg.Token, map[string]any{
			"txId": "smoke-a", "txData": map[string]any{"amt": amt},
		})
		if err != nil || !up.OK {
			fatalf("upsert amt=%d: err=%v apiErr=%q", amt, err, up.Err)
		}
	}
	step("upsert x2", nil)

	list, err := c.get(ctx, "/api/transactions", lg.Token)
	step("list", err)
	if !list.OK || len(list.Transactions) != 1 {
		fatalf("list: ok=%v err=%q n=%d (want exactly 1)", list.OK, list.Err, len(list.Transactions))
	}
	if got := list.Transactions[0]["amt"]; fmt.Sprint(got) != "9" {
		fatalf("list: amt=%v, want 9", got)
	}

	// Step 6: logout, then the token must be dead.
	lo, err := c.post(ctx, "/api/logout", lg.Token, nil)
	step("logout", err)
	if !lo.OK {
		fatalf("logout: err=%q", lo.Err)
	}
	if resp, err := c.get(ctx, "/api/me", lg.Token); err != nil {
		fatalf("me after logout: %v", err)
	} else if resp.OK {
		fatalf("me after logout: expected rejection, got ok")
	}
	step("logged-out token rejected", nil)

	fmt.Println("api-smoke: OK")
}

func (c *smokeClient) post(ctx context.Context, path, token string, body any) (envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return envelope{}, err
		}
		rd = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, path, token, rd)
}

func (c *smokeClient) get(ctx context.Context, path, token string) (envelope, error) {
	return c.do(ctx, http.MethodGet, path, token, nil)
}

func (c *smokeClient) do(ctx context.Context, method, path, token string, body io.Reader) (envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return envelope{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, err
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%s %s: status %d, non-JSON body %q", method, path, resp.StatusCode, raw)
	}
	return env, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func step(name string, err error) {
	if err != nil {
		fatalf("%s: %v", name, err)
	}
	fmt.Printf("ok: %s\n", name)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "api-smoke: "+format+"\n", args...)
	os.Exit(1)
}
