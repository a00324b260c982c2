// Package memidentity is an in-process identity provider for development and
// tests. It keeps accounts in memory, hashes passwords with bcrypt and
// reports errors with the same messages a GoTrue server would.
package memidentity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
)

// Issuer is the otpauth issuer of enrolled factors.
const Issuer = "AgentDeck"

const defaultSessionTTL = time.Hour

// Provider errors, using the provider's own wording.
var (
	errInvalidLogin   = &identity.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	errNotConfirmed   = &identity.Error{Status: http.StatusBadRequest, Message: "Email not confirmed"}
	errUserNotFound   = &identity.Error{Status: http.StatusNotFound, Message: "User not found"}
	errAlreadyExists  = &identity.Error{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	errSessionMissing = &identity.Error{Status: http.StatusUnauthorized, Message: "Auth session missing!"}
	errInvalidCode    = &identity.Error{Status: http.StatusUnprocessableEntity, Message: "Invalid TOTP code entered"}
	errFactorNotFound = &identity.Error{Status: http.StatusNotFound, Message: "Factor not found"}
)

type factor struct {
	secret      string // base32
	backupCodes map[string]bool
	verified    bool
}

type account struct {
	user    user.User
	hash    []byte
	factors map[string]*factor
}

// Provider implements identity.Provider in memory.
type Provider struct {
	identity.Emitter

	policy     user.PasswordPolicy
	confirm    bool
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
	newID      func() string

	mu            sync.Mutex
	accounts      map[string]*account // keyed by lower-cased email
	session       *user.Session
	recoveryToken map[string]string // token -> account key
	recoveryLink  map[string]string // account key -> last link
}

// New creates an empty provider enforcing policy on sign-up and password
// updates.
func New(policy user.PasswordPolicy) *Provider {
	return &Provider{
		policy:     policy,
		sessionTTL: defaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		newID:      uuid.NewString,

		accounts:      make(map[string]*account),
		recoveryToken: make(map[string]string),
		recoveryLink:  make(map[string]string),
	}
}

// RequireConfirmation makes new accounts unable to sign in until Confirm is
// called for them.
func (p *Provider) RequireConfirmation(on bool) *Provider {
	p.confirm = on
	return p
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func (p *Provider) WithBcryptCost(cost int) *Provider {
	p.bcryptCost = cost
	return p
}

// Confirm marks the account's email as confirmed.
func (p *Provider) Confirm(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[normalize(email)]
	if !ok {
		return errUserNotFound
	}
	now := p.now()
	acc.user.EmailConfirmedAt = &now
	return nil
}

// GetSession returns the current session. An expired session is dropped.
func (p *Provider) GetSession(_ context.Context) (*user.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	if p.session.Expired(p.now()) {
		p.session = nil
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

// SignInWithPassword checks the password against the stored hash.
func (p *Provider) SignInWithPassword(_ context.Context, creds user.Credentials) (*user.Session, error) {
	p.mu.Lock()
	acc, ok := p.accounts[normalize(creds.Email)]
	if !ok {
		p.mu.Unlock()
		return nil, errInvalidLogin
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(creds.Password)) != nil {
		p.mu.Unlock()
		return nil, errInvalidLogin
	}
	if p.confirm && acc.user.EmailConfirmedAt == nil {
		p.mu.Unlock()
		return nil, errNotConfirmed
	}
	s := p.startSessionLocked(acc)
	p.mu.Unlock()

	p.Emit(identity.Event{Type: identity.EventSignedIn, Session: s})
	return s, nil
}

// SignUp creates an account. With confirmation required no session is
// returned.
func (p *Provider) SignUp(_ context.Context, creds user.Credentials) (*user.User, *user.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, nil, &identity.Error{Status: http.StatusBadRequest, Message: err.Error()}
	}
	if err := p.checkPolicy(creds.Password); err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	key := normalize(creds.Email)
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return nil, nil, errAlreadyExists
	}
	now := p.now()
	acc := &account{
		user: user.User{
			ID:        p.newID(),
			Email:     creds.Email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		hash:    hash,
		factors: make(map[string]*factor),
	}
	if !p.confirm {
		acc.user.EmailConfirmedAt = &now
	}
	p.accounts[key] = acc
	u := acc.user

	if p.confirm {
		p.mu.Unlock()
		return &u, nil, nil
	}
	s := p.startSessionLocked(acc)
	p.mu.Unlock()

	p.Emit(identity.Event{Type: identity.EventSignedIn, Session: s})
	return &u, s, nil
}

// SignOut drops the current session.
func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.Emit(identity.Event{Type: identity.EventSignedOut})
	return nil
}

// ResetPasswordForEmail issues a recovery link for a known account. The link
// is kept in memory and returned by RecoveryLink instead of being mailed.
func (p *Provider) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := normalize(email)
	if _, ok := p.accounts[key]; !ok {
		return errUserNotFound
	}
	token := p.newID()
	link := redirectTo
	if link != "" {
		sep := "?"
		if strings.Contains(link, "?") {
			sep = "&"
		}
		link += sep + "type=recovery&token=" + url.QueryEscape(token)
	}
	p.recoveryToken[token] = key
	p.recoveryLink[key] = link
	return nil
}

// RecoveryLink returns the last recovery link issued for email.
func (p *Provider) RecoveryLink(email string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	link, ok := p.recoveryLink[normalize(email)]
	return link, ok
}

// Recover redeems a recovery token, signing its account in and emitting
// PASSWORD_RECOVERY, the way following the mailed link would.
func (p *Provider) Recover(token string) (*user.Session, error) {
	p.mu.Lock()
	key, ok := p.recoveryToken[token]
	if !ok {
		p.mu.Unlock()
		return nil, &identity.Error{Status: http.StatusForbidden, Message: "Token has expired or is invalid"}
	}
	delete(p.recoveryToken, token)
	acc, ok := p.accounts[key]
	if !ok {
		p.mu.Unlock()
		return nil, errUserNotFound
	}
	s := p.startSessionLocked(acc)
	p.mu.Unlock()

	p.Emit(identity.Event{Type: identity.EventPasswordRecovery, Session: s})
	return s, nil
}

// UpdatePassword replaces the signed-in user's password.
func (p *Provider) UpdatePassword(_ context.Context, password string) (*user.User, error) {
	if err := p.checkPolicy(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	acc, err := p.currentLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acc.hash = hash
	acc.user.UpdatedAt = p.now()
	u := acc.user
	p.session.User = u
	s := *p.session
	p.mu.Unlock()

	p.Emit(identity.Event{Type: identity.EventUserUpdated, Session: &s})
	return &u, nil
}

// EnrollMFA creates an unverified TOTP factor with a fresh secret.
func (p *Provider) EnrollMFA(_ context.Context) (*user.Enrollment, error) {
	codes, err := user.GenerateBackupCodes(user.DefaultBackupCodes)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	acc, err := p.currentLocked()
	if err != nil {
		return nil, err
	}

	key, err := newTOTPKey(acc.user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	f := &factor{secret: key.Secret(), backupCodes: make(map[string]bool, len(codes))}
	for _, c := range codes {
		f.backupCodes[c] = true
	}
	id := p.newID()
	acc.factors[id] = f

	return &user.Enrollment{
		FactorID:    id,
		Secret:      f.secret,
		URI:         key.URL(),
		BackupCodes: codes,
	}, nil
}

// VerifyMFA accepts a current TOTP code or an unused backup code.
func (p *Provider) VerifyMFA(_ context.Context, factorID, code string) (*user.Verification, error) {
	p.mu.Lock()
	acc, err := p.currentLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	f, ok := acc.factors[factorID]
	if !ok {
		p.mu.Unlock()
		return nil, errFactorNotFound
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case validTOTP(f.secret, code, p.now()):
	case f.backupCodes[code]:
		delete(f.backupCodes, code)
	default:
		p.mu.Unlock()
		return nil, errInvalidCode
	}
	f.verified = true
	s := *p.session
	p.mu.Unlock()

	p.Emit(identity.Event{Type: identity.EventMFAEnabled, Session: &s})
	return &user.Verification{Verified: true, Session: &s}, nil
}

// OAuthURL always fails: the in-memory provider has no external identity
// providers to redirect to.
func (p *Provider) OAuthURL(provider, _ string) (string, error) {
	return "", &identity.Error{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Unsupported provider: %s is not enabled", provider),
	}
}

func (p *Provider) checkPolicy(password string) error {
	problems := p.policy.Check(password)
	if len(problems) == 0 {
		return nil
	}
	return &identity.Error{
		Status:  http.StatusUnprocessableEntity,
		Message: "Password should be a stronger password. " + strings.Join(problems, "; "),
	}
}

// currentLocked returns the account behind the current session.
func (p *Provider) currentLocked() (*account, error) {
	if p.session == nil || p.session.Expired(p.now()) {
		return nil, errSessionMissing
	}
	acc, ok := p.accounts[normalize(p.session.User.Email)]
	if !ok {
		return nil, errUserNotFound
	}
	return acc, nil
}

func (p *Provider) startSessionLocked(acc *account) *user.Session {
	now := p.now()
	s := &user.Session{
		AccessToken:  p.newID(),
		RefreshToken: p.newID(),
		TokenType:    "bearer",
		ExpiresIn:    int(p.sessionTTL.Seconds()),
		ExpiresAt:    now.Add(p.sessionTTL).Unix(),
		User:         acc.user,
	}
	p.session = s
	cp := *s
	return &cp
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
