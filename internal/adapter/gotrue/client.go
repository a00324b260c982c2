// Package gotrue implements the identity provider port against a
// GoTrue-compatible auth server (the REST API behind Supabase Auth).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
	"github.com/Strob0t/AgentDeck/internal/resilience"
)

// MFAIssuer is the issuer shown in authenticator apps.
const MFAIssuer = "AgentDeck"

// errSessionMissing mirrors the provider's own message for calls that need a
// signed-in user.
var errSessionMissing = &identity.Error{Status: http.StatusUnauthorized, Message: "Auth session missing!"}

// oauthProviders holds per-provider scopes and extra query parameters.
var oauthProviders = map[string]struct {
	scopes string
	params map[string]string
}{
	"google": {scopes: "email profile", params: map[string]string{"access_type": "offline", "prompt": "consent"}},
	"github": {scopes: "user:email"},
}

// Client talks to the GoTrue REST API and holds the current session in
// process, the way a browser client would.
type Client struct {
	baseURL    string // e.g. https://xyz.supabase.co/auth/v1
	anonKey    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	now        func() time.Time

	identity.Emitter

	mu      sync.Mutex
	session *user.Session
}

// NewClient creates a client for the auth server rooted at projectURL.
// The anon key is sent as the apikey header on every request.
func NewClient(projectURL, anonKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(projectURL, "/") + "/auth/v1",
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls. Errors
// reported by the auth server with a 4xx status do not trip it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b.WithFailureFilter(func(err error) bool {
		var pe *identity.Error
		if errors.As(err, &pe) {
			return pe.Status >= http.StatusInternalServerError
		}
		return !errors.Is(err, context.Canceled)
	})
}

// GetSession returns the current session, refreshing it first when the
// access token has expired.
func (c *Client) GetSession(ctx context.Context) (*user.Session, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil, nil
	}
	if !s.Expired(c.now()) {
		cp := *s
		return &cp, nil
	}
	if s.RefreshToken == "" {
		c.setSession(nil)
		return nil, nil
	}

	var fresh user.Session
	err := c.doJSON(ctx, http.MethodPost, "/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": s.RefreshToken}, &fresh)
	if err != nil {
		return nil, err
	}
	c.storeSession(&fresh)
	c.Emit(identity.Event{Type: identity.EventTokenRefreshed, Session: &fresh})
	return &fresh, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	var s user.Session
	if err := c.doJSON(ctx, http.MethodPost, "/token?grant_type=password", "", creds, &s); err != nil {
		return nil, err
	}
	c.storeSession(&s)
	c.Emit(identity.Event{Type: identity.EventSignedIn, Session: &s})
	return &s, nil
}

// SignUp registers an account. When the server requires email confirmation
// it answers with the bare user and no session.
func (c *Client) SignUp(ctx context.Context, creds user.Credentials) (*user.User, *user.Session, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/signup", "", creds, &raw); err != nil {
		return nil, nil, err
	}

	var s user.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, nil, fmt.Errorf("decode signup: %w", err)
	}
	if s.AccessToken != "" {
		c.storeSession(&s)
		c.Emit(identity.Event{Type: identity.EventSignedIn, Session: &s})
		u := s.User
		return &u, &s, nil
	}

	var u user.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, fmt.Errorf("decode signup user: %w", err)
	}
	return &u, nil, nil
}

// SignOut revokes the session on the server and clears it locally. The local
// session is cleared even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.accessToken()
	c.setSession(nil)
	c.Emit(identity.Event{Type: identity.EventSignedOut})
	if token == "" {
		return nil
	}
	return c.doJSON(ctx, http.MethodPost, "/logout", token, nil, nil)
}

// ResetPasswordForEmail sends a recovery email linking to redirectTo.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.doJSON(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword sets a new password for the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) (*user.User, error) {
	token := c.accessToken()
	if token == "" {
		return nil, errSessionMissing
	}
	var u user.User
	if err := c.doJSON(ctx, http.MethodPut, "/user", token, map[string]string{"password": password}, &u); err != nil {
		return nil, err
	}

	c.mu.Lock()
	var s *user.Session
	if c.session != nil {
		c.session.User = u
		cp := *c.session
		s = &cp
	}
	c.mu.Unlock()
	c.Emit(identity.Event{Type: identity.EventUserUpdated, Session: s})
	return &u, nil
}

type factorResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	TOTP struct {
		QRCode string `json:"qr_code"`
		Secret string `json:"secret"`
		URI    string `json:"uri"`
	} `json:"totp"`
}

// EnrollMFA enrolls a TOTP factor. The server does not issue backup codes,
// so they are generated locally.
func (c *Client) EnrollMFA(ctx context.Context) (*user.Enrollment, error) {
	token := c.accessToken()
	if token == "" {
		return nil, errSessionMissing
	}
	var f factorResponse
	body := map[string]string{"factor_type": "totp", "issuer": MFAIssuer}
	if err := c.doJSON(ctx, http.MethodPost, "/factors", token, body, &f); err != nil {
		return nil, err
	}
	codes, err := user.GenerateBackupCodes(user.DefaultBackupCodes)
	if err != nil {
		return nil, err
	}
	return &user.Enrollment{
		FactorID:    f.ID,
		Secret:      f.TOTP.Secret,
		URI:         f.TOTP.URI,
		BackupCodes: codes,
	}, nil
}

// VerifyMFA opens a challenge for the factor and verifies code against it.
// A successful verification upgrades the session.
func (c *Client) VerifyMFA(ctx context.Context, factorID, code string) (*user.Verification, error) {
	token := c.accessToken()
	if token == "" {
		return nil, errSessionMissing
	}
	factorPath := "/factors/" + url.PathEscape(factorID)

	var challenge struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, factorPath+"/challenge", token, nil, &challenge); err != nil {
		return nil, err
	}

	var s user.Session
	body := map[string]string{"challenge_id": challenge.ID, "code": code}
	if err := c.doJSON(ctx, http.MethodPost, factorPath+"/verify", token, body, &s); err != nil {
		return nil, err
	}
	c.storeSession(&s)
	c.Emit(identity.Event{Type: identity.EventMFAEnabled, Session: &s})
	return &user.Verification{Verified: true, Session: &s}, nil
}

// OAuthURL builds the authorize URL for an external provider. The browser
// follows it; no request is made here.
func (c *Client) OAuthURL(provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", &identity.Error{Status: http.StatusBadRequest, Message: "provider is required"}
	}
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if p, ok := oauthProviders[provider]; ok {
		if p.scopes != "" {
			q.Set("scopes", p.scopes)
		}
		for k, v := range p.params {
			q.Set(k, v)
		}
	}
	return c.baseURL + "/authorize?" + q.Encode(), nil
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// storeSession fills in ExpiresAt when the server only sent ExpiresIn.
func (c *Client) storeSession(s *user.Session) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Unix() + int64(s.ExpiresIn)
	}
	c.setSession(s)
}

func (c *Client) setSession(s *user.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil {
		c.session = nil
		return
	}
	cp := *s
	c.session = &cp
}

// errorBody covers the error shapes GoTrue has used across versions.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorBody) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// doJSON sends body as JSON and decodes a 2xx response into out (if non-nil).
// Non-2xx responses become *identity.Error carrying the server's message.
func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	call := func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", c.anonKey)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			var eb errorBody
			_ = json.Unmarshal(data, &eb)
			msg := eb.text()
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			return &identity.Error{Status: resp.StatusCode, Message: msg}
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}
