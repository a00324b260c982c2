package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/AgentDeck/internal/adapter/memkv"
	"github.com/Strob0t/AgentDeck/internal/adapter/ws"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/connectivity"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
	"github.com/Strob0t/AgentDeck/internal/port/notifier"
	"github.com/Strob0t/AgentDeck/internal/resilience"
)

var _ identity.Provider = (*mockProvider)(nil)

// mockProvider is a scripted identity provider.
type mockProvider struct {
	identity.Emitter

	mu          sync.Mutex
	signInCalls int
	signInErr   error
	signInGate  chan struct{} // when set, SignInWithPassword waits on it
	password    string        // when set, other passwords are rejected
	signOutErr  error
	sessionErr  error
	resetErr    error
	updateErr   error
	signUpNoSes bool
	current     *user.Session
	redirects   []string
}

func (m *mockProvider) GetSession(context.Context) (*user.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.sessionErr
}

func (m *mockProvider) SignInWithPassword(_ context.Context, creds user.Credentials) (*user.Session, error) {
	m.mu.Lock()
	m.signInCalls++
	gate := m.signInGate
	err := m.signInErr
	if m.password != "" && creds.Password != m.password {
		err = &identity.Error{Status: 400, Message: "Invalid login credentials"}
	}
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &user.Session{AccessToken: "tok", User: user.User{ID: "u1", Email: creds.Email}}, nil
}

func (m *mockProvider) SignUp(_ context.Context, creds user.Credentials) (*user.User, *user.Session, error) {
	u := &user.User{ID: "u2", Email: creds.Email}
	if m.signUpNoSes {
		return u, nil, nil
	}
	return u, &user.Session{AccessToken: "tok", User: *u}, nil
}

func (m *mockProvider) SignOut(context.Context) error { return m.signOutErr }

func (m *mockProvider) ResetPasswordForEmail(_ context.Context, _, redirectTo string) error {
	m.redirects = append(m.redirects, redirectTo)
	return m.resetErr
}

func (m *mockProvider) UpdatePassword(context.Context, string) (*user.User, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &user.User{ID: "u1"}, nil
}

func (m *mockProvider) EnrollMFA(context.Context) (*user.Enrollment, error) {
	return &user.Enrollment{FactorID: "f1", Secret: "S"}, nil
}

func (m *mockProvider) VerifyMFA(_ context.Context, _, code string) (*user.Verification, error) {
	if code != "123456" {
		return nil, &identity.Error{Status: 422, Message: "Invalid TOTP code entered"}
	}
	return &user.Verification{Verified: true, Session: &user.Session{AccessToken: "aal2"}}, nil
}

func (m *mockProvider) OAuthURL(provider, redirectTo string) (string, error) {
	m.redirects = append(m.redirects, redirectTo)
	return "https://id.example.com/authorize?provider=" + provider, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signInCalls
}

// switchableOnline is a connectivity.Checker tests can flip.
type switchableOnline struct {
	mu sync.Mutex
	on bool
}

func (s *switchableOnline) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

func (s *switchableOnline) set(on bool) {
	s.mu.Lock()
	s.on = on
	s.mu.Unlock()
}

var _ connectivity.Checker = (*switchableOnline)(nil)

type authFixture struct {
	svc      *AuthService
	provider *mockProvider
	online   *switchableOnline
	prefs    *Preferences
	hub      *mockBroadcaster
	toasts   *mockNotifier
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		provider: &mockProvider{},
		online:   &switchableOnline{on: true},
		prefs:    NewPreferences(memkv.New()),
		hub:      &mockBroadcaster{},
		toasts:   &mockNotifier{name: "mock"},
	}
	f.svc = NewAuthService(f.provider, f.online, f.prefs, f.hub, NewNotificationService(f.toasts),
		config.SignIn{MaxAttempts: 5, Window: 300 * time.Second}, "http://localhost:5173/")
	t.Cleanup(f.svc.Close)
	return f
}

func TestAuthInitialize(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.current = &user.Session{AccessToken: "existing"}
	_ = f.prefs.SetRememberMe(context.Background(), true)

	f.svc.Initialize(context.Background())
	f.svc.Initialize(context.Background())

	if f.provider.Len() != 1 {
		t.Fatalf("expected exactly one subscription, got %d", f.provider.Len())
	}
	if s := f.svc.Session(); s == nil || s.AccessToken != "existing" {
		t.Fatalf("session = %+v", s)
	}
	if !f.svc.RememberMe() {
		t.Fatal("rememberMe should be loaded from preferences")
	}
	if st := f.svc.State(); !st.Initialized || st.Loading || st.Error != "" {
		t.Fatalf("state = %+v", st)
	}

	f.svc.Close()
	if f.provider.Len() != 0 {
		t.Fatal("Close should unsubscribe")
	}
}

func TestAuthInitializeFailures(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		f := newAuthFixture(t)
		f.online.set(false)
		f.svc.Initialize(context.Background())

		st := f.svc.State()
		if !st.Initialized || st.Error != user.MsgOfflineInit {
			t.Fatalf("state = %+v", st)
		}
		if f.provider.Len() != 0 {
			t.Fatal("no subscription expected after failure")
		}
	})

	t.Run("provider error", func(t *testing.T) {
		f := newAuthFixture(t)
		f.provider.current = &user.Session{AccessToken: "stale"}
		f.provider.sessionErr = errors.New("provider unreachable")
		f.svc.Initialize(context.Background())

		if st := f.svc.State(); !st.Initialized || st.Error != "provider unreachable" {
			t.Fatalf("state = %+v", st)
		}
		if f.svc.Session() != nil {
			t.Fatal("session should be cleared on error")
		}
		if len(f.toasts.messages(notifier.LevelError)) != 1 {
			t.Fatal("expected an error toast")
		}
	})
}

func TestAuthSessionEventsUpdateCache(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.Initialize(context.Background())

	f.provider.Emit(identity.Event{Type: identity.EventSignedIn, Session: &user.Session{AccessToken: "t", User: user.User{Email: "a@b.com"}}})
	if f.svc.Session() == nil {
		t.Fatal("expected session from event")
	}
	f.provider.Emit(identity.Event{Type: identity.EventSignedOut})
	if f.svc.Session() != nil {
		t.Fatal("expected session cleared by event")
	}
	if f.hub.count(ws.EventAuthSession) != 2 {
		t.Fatalf("expected 2 session broadcasts, got %d", f.hub.count(ws.EventAuthSession))
	}
}

func TestAuthSignIn(t *testing.T) {
	f := newAuthFixture(t)

	s, err := f.svc.SignIn(context.Background(), " a@b.com ", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.User.Email != "a@b.com" {
		t.Fatalf("unexpected session %+v", s)
	}
	if f.svc.Session() == nil {
		t.Fatal("session not stored")
	}
	if msgs := f.toasts.messages(notifier.LevelSuccess); len(msgs) != 1 || msgs[0] != "Successfully signed in" {
		t.Fatalf("toasts = %v", msgs)
	}
}

func TestAuthSignInRewritesProviderErrors(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"Invalid login credentials", user.MsgInvalidLogin},
		{"Email not confirmed", user.MsgEmailUnverified},
		{"User not found", user.MsgNoAccount},
		{"Database error querying schema", "Database error querying schema"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			f := newAuthFixture(t)
			provErr := &identity.Error{Status: 400, Message: tt.provider}
			f.provider.signInErr = provErr

			_, err := f.svc.SignIn(context.Background(), "a@b.com", "pw")
			if err == nil || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if !errors.Is(err, provErr) {
				t.Fatal("rewritten error should wrap the provider error")
			}
			if f.svc.State().Error != tt.want {
				t.Fatalf("state error = %q", f.svc.State().Error)
			}
			if msgs := f.toasts.messages(notifier.LevelError); len(msgs) != 1 || msgs[0] != tt.want {
				t.Fatalf("toasts = %v", msgs)
			}
		})
	}
}

func TestAuthSignInRateLimit(t *testing.T) {
	f := newAuthFixture(t)
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	f.svc.attempts = resilience.NewAttempts(5, 300*time.Second).WithClock(func() time.Time { return now })
	f.provider.signInErr = &identity.Error{Status: 400, Message: "Invalid login credentials"}
	ctx := context.Background()

	for i := range 5 {
		_, err := f.svc.SignIn(ctx, "a@b.com", "wrong")
		if errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("attempt %d rejected locally", i+1)
		}
		now = now.Add(10 * time.Second)
	}

	_, err := f.svc.SignIn(ctx, "a@b.com", "wrong")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("6th attempt: expected rate limit, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || !rl.ResetAt.Equal(time.Date(2024, 3, 4, 15, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset time in %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Too many login attempts. Please try again after ") {
		t.Fatalf("message = %q", err.Error())
	}
	if f.provider.calls() != 5 {
		t.Fatalf("provider called %d times, want 5", f.provider.calls())
	}

	now = time.Date(2024, 3, 4, 15, 5, 0, 0, time.UTC)
	if _, err := f.svc.SignIn(ctx, "a@b.com", "wrong"); errors.Is(err, domain.ErrRateLimited) {
		t.Fatal("counter should reset after the window")
	}
	if f.provider.calls() != 6 {
		t.Fatalf("provider called %d times, want 6", f.provider.calls())
	}
}

func TestAuthSignInSuccessResetsAttempts(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.signInErr = errors.New("boom")
	for range 4 {
		_, _ = f.svc.SignIn(context.Background(), "a@b.com", "pw")
	}
	f.provider.signInErr = nil
	if _, err := f.svc.SignIn(context.Background(), "a@b.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if n := f.svc.attempts.Count(); n != 0 {
		t.Fatalf("attempts = %d after success, want 0", n)
	}
}

func TestAuthSignInOffline(t *testing.T) {
	f := newAuthFixture(t)
	f.online.set(false)

	_, err := f.svc.SignIn(context.Background(), "a@b.com", "pw")
	if !errors.Is(err, domain.ErrOffline) || err.Error() != user.MsgOffline {
		t.Fatalf("err = %v", err)
	}
	if f.provider.calls() != 0 {
		t.Fatal("provider must not be called offline")
	}
}

func TestAuthOverlappingSignInsShareOneCall(t *testing.T) {
	f := newAuthFixture(t)
	gate := make(chan struct{})
	f.provider.signInGate = gate

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.SignIn(context.Background(), "a@b.com", "pw")
		}()
	}

	deadline := time.Now().Add(time.Second)
	for f.provider.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("sign in %d: %v", i, err)
		}
	}
	if f.provider.calls() != 1 {
		t.Fatalf("provider called %d times, want 1", f.provider.calls())
	}
}

func TestAuthOverlappingSignInsWithDifferentPasswords(t *testing.T) {
	f := newAuthFixture(t)
	gate := make(chan struct{})
	f.provider.signInGate = gate
	f.provider.password = "Corr3ct!Pass"

	var wg sync.WaitGroup
	sessions := make([]*user.Session, 2)
	errs := make([]error, 2)
	for i, pw := range []string{"Corr3ct!Pass", "totally-wrong"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions[i], errs[i] = f.svc.SignIn(context.Background(), "a@b.com", pw)
		}()
	}

	deadline := time.Now().Add(time.Second)
	for f.provider.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()

	if errs[0] != nil || sessions[0] == nil {
		t.Fatalf("correct password: session=%v err=%v", sessions[0], errs[0])
	}
	if errs[1] == nil || sessions[1] != nil {
		t.Fatalf("wrong password: session=%v err=%v, want rejection", sessions[1], errs[1])
	}
	if got := errs[1].Error(); got != user.MsgInvalidLogin {
		t.Errorf("error = %q, want %q", got, user.MsgInvalidLogin)
	}
	if f.provider.calls() != 2 {
		t.Fatalf("provider called %d times, want 2", f.provider.calls())
	}
}

func TestSignInKeySeparatesPasswords(t *testing.T) {
	if signInKey("A@b.com ", "pw") != signInKey("a@b.com", "pw") {
		t.Error("email case and spacing should not change the key")
	}
	if signInKey("a@b.com", "pw") == signInKey("a@b.com", "other") {
		t.Error("different passwords must not share a key")
	}
}

func TestAuthSignOut(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_ = f.svc.SetRememberMe(ctx, true)
	if _, err := f.svc.SignIn(ctx, "a@b.com", "pw"); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if f.svc.Session() != nil || f.svc.RememberMe() {
		t.Fatal("sign out should clear session and rememberMe")
	}
	if remember, _ := f.prefs.RememberMe(ctx); remember {
		t.Fatal("rememberMe preference should be removed")
	}
}

func TestAuthSignOutClearsSessionOnFailure(t *testing.T) {
	for _, offline := range []bool{false, true} {
		f := newAuthFixture(t)
		ctx := context.Background()
		if _, err := f.svc.SignIn(ctx, "a@b.com", "pw"); err != nil {
			t.Fatal(err)
		}
		f.provider.signOutErr = &identity.Error{Status: 500, Message: "server error"}
		f.online.set(!offline)

		if err := f.svc.SignOut(ctx); err == nil {
			t.Fatal("expected error")
		}
		if f.svc.Session() != nil {
			t.Fatalf("offline=%v: session must be cleared locally", offline)
		}
		want := "server error"
		if offline {
			want = user.MsgOfflineSignOut
		}
		if f.svc.State().Error != want {
			t.Fatalf("error = %q, want %q", f.svc.State().Error, want)
		}
	}
}

func TestAuthResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.ResetPassword(ctx, "a@b.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(f.provider.redirects) != 1 || f.provider.redirects[0] != "http://localhost:5173/auth/reset-password" {
		t.Fatalf("redirects = %v", f.provider.redirects)
	}

	f.provider.resetErr = &identity.Error{Status: 404, Message: "User not found"}
	if err := f.svc.ResetPassword(ctx, "x@b.com"); err == nil || err.Error() != user.MsgNoAccountReset {
		t.Fatalf("err = %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "bogus"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthUpdatePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.UpdatePassword(ctx, "N3w!password"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if msgs := f.toasts.messages(notifier.LevelSuccess); len(msgs) != 1 || msgs[0] != "Password updated successfully" {
		t.Fatalf("toasts = %v", msgs)
	}

	f.provider.updateErr = &identity.Error{Status: 422, Message: "Password should be a stronger password"}
	if err := f.svc.UpdatePassword(ctx, "weak"); err == nil || err.Error() != user.MsgWeakPassword {
		t.Fatalf("err = %v", err)
	}
}

func TestAuthSignUp(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, s, err := f.svc.SignUp(ctx, "a@b.com", "Str0ng!pass"); err != nil || s == nil {
		t.Fatalf("sign up = %v, %v", s, err)
	}

	f.provider.signUpNoSes = true
	_, s, err := f.svc.SignUp(ctx, "c@d.com", "Str0ng!pass")
	if err != nil || s != nil {
		t.Fatalf("sign up = %v, %v", s, err)
	}
	if last := f.toasts.last(); last.Message != "Please check your email for the confirmation link." {
		t.Fatalf("last toast = %+v", last)
	}
}

func TestAuthOAuthAndMFA(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	u, err := f.svc.OAuthURL(ctx, "github")
	if err != nil || !strings.Contains(u, "provider=github") {
		t.Fatalf("oauth = %q, %v", u, err)
	}
	if f.provider.redirects[0] != "http://localhost:5173/auth/callback" {
		t.Fatalf("redirect = %q", f.provider.redirects[0])
	}

	e, err := f.svc.EnrollMFA(ctx)
	if err != nil || e.FactorID != "f1" {
		t.Fatalf("enroll = %+v, %v", e, err)
	}
	if _, err := f.svc.VerifyMFA(ctx, "f1", "000000"); err == nil {
		t.Fatal("expected invalid code")
	}
	v, err := f.svc.VerifyMFA(ctx, "f1", "123456")
	if err != nil || !v.Verified {
		t.Fatalf("verify = %+v, %v", v, err)
	}
	if s := f.svc.Session(); s == nil || s.AccessToken != "aal2" {
		t.Fatal("verified session should replace the cached one")
	}

	f.online.set(false)
	if _, err := f.svc.EnrollMFA(ctx); !errors.Is(err, domain.ErrOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}
}
