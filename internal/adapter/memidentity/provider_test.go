package memidentity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
)

const strongPassword = "Str0ng!pass"

func newTestProvider() *Provider {
	return New(user.DefaultPasswordPolicy()).WithBcryptCost(bcrypt.MinCost)
}

func providerMessage(t *testing.T, err error) string {
	t.Helper()
	var pe *identity.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *identity.Error, got %v", err)
	}
	return pe.Message
}

func TestSignUpAndSignIn(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	var events []identity.EventType
	p.Subscribe(func(ev identity.Event) { events = append(events, ev.Type) })

	u, s, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if u.ID == "" || s == nil {
		t.Fatalf("expected user and session, got %+v %+v", u, s)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if got, _ := p.GetSession(ctx); got != nil {
		t.Fatal("session should be cleared after sign out")
	}

	s, err = p.SignInWithPassword(ctx, user.Credentials{Email: "A@B.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.User.ID != u.ID {
		t.Fatalf("signed in as %q, want %q", s.User.ID, u.ID)
	}

	want := []identity.EventType{identity.EventSignedIn, identity.EventSignedOut, identity.EventSignedIn}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestSignInErrors(t *testing.T) {
	p := newTestProvider().RequireConfirmation(true)
	ctx := context.Background()
	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	tests := []struct {
		name  string
		creds user.Credentials
		want  string
	}{
		{"unknown user", user.Credentials{Email: "x@b.com", Password: strongPassword}, "Invalid login credentials"},
		{"wrong password", user.Credentials{Email: "a@b.com", Password: "nope"}, "Invalid login credentials"},
		{"unconfirmed", user.Credentials{Email: "a@b.com", Password: strongPassword}, "Email not confirmed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignInWithPassword(ctx, tt.creds)
			if got := providerMessage(t, err); got != tt.want {
				t.Fatalf("message = %q, want %q", got, tt.want)
			}
		})
	}

	if err := p.Confirm("a@b.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := p.SignInWithPassword(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign in after confirm: %v", err)
	}
}

func TestSignUpWithConfirmationReturnsNoSession(t *testing.T) {
	p := newTestProvider().RequireConfirmation(true)
	u, s, err := p.SignUp(context.Background(), user.Credentials{Email: "a@b.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if s != nil || u.EmailConfirmedAt != nil {
		t.Fatalf("expected unconfirmed user without session, got %+v %+v", u, s)
	}
}

func TestSignUpRejectsWeakAndDuplicate(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	_, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: "weak"})
	if msg := providerMessage(t, err); !strings.Contains(msg, "stronger password") {
		t.Fatalf("weak password message = %q", msg)
	}

	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, _, err = p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword})
	if msg := providerMessage(t, err); msg != "User already registered" {
		t.Fatalf("duplicate message = %q", msg)
	}
}

func TestUpdatePassword(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, err := p.UpdatePassword(ctx, "N3w!password"); providerMessage(t, err) != "Auth session missing!" {
		t.Fatalf("expected missing session, got %v", err)
	}

	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := p.UpdatePassword(ctx, "short"); !strings.Contains(providerMessage(t, err), "stronger password") {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if _, err := p.UpdatePassword(ctx, "N3w!password"); err != nil {
		t.Fatalf("update: %v", err)
	}

	_ = p.SignOut(ctx)
	if _, err := p.SignInWithPassword(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err == nil {
		t.Fatal("old password should no longer work")
	}
	if _, err := p.SignInWithPassword(ctx, user.Credentials{Email: "a@b.com", Password: "N3w!password"}); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
}

func TestPasswordRecovery(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()
	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_ = p.SignOut(ctx)

	err := p.ResetPasswordForEmail(ctx, "nobody@b.com", "")
	if msg := providerMessage(t, err); msg != "User not found" {
		t.Fatalf("unknown user message = %q", msg)
	}

	if err := p.ResetPasswordForEmail(ctx, "a@b.com", "http://localhost:5173/reset-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	link, ok := p.RecoveryLink("a@b.com")
	if !ok {
		t.Fatal("expected a recovery link")
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if u.Path != "/reset-password" || u.Query().Get("type") != "recovery" {
		t.Fatalf("unexpected link %q", link)
	}

	var got identity.EventType
	p.Subscribe(func(ev identity.Event) { got = ev.Type })

	token := u.Query().Get("token")
	if _, err := p.Recover(token); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != identity.EventPasswordRecovery {
		t.Fatalf("event = %q, want PASSWORD_RECOVERY", got)
	}
	if _, err := p.Recover(token); err == nil {
		t.Fatal("recovery token should be single-use")
	}
}

func TestSessionExpires(t *testing.T) {
	p := newTestProvider()
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	now = now.Add(defaultSessionTTL)
	if s, _ := p.GetSession(ctx); s != nil {
		t.Fatalf("expected expired session to be dropped, got %+v", s)
	}
}

func TestEnrollAndVerifyMFA(t *testing.T) {
	p := newTestProvider()
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := p.EnrollMFA(ctx); err == nil {
		t.Fatal("expected error without session")
	}
	if _, _, err := p.SignUp(ctx, user.Credentials{Email: "a@b.com", Password: strongPassword}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	e, err := p.EnrollMFA(ctx)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if len(e.BackupCodes) != user.DefaultBackupCodes {
		t.Fatalf("got %d backup codes", len(e.BackupCodes))
	}
	if !strings.HasPrefix(e.URI, "otpauth://totp/") || !strings.Contains(e.URI, "issuer="+Issuer) {
		t.Fatalf("unexpected uri %q", e.URI)
	}

	code, err := totp.GenerateCodeCustom(e.Secret, now, totpOpts)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	wrong := []byte(code)
	wrong[5] = '0' + (wrong[5]-'0'+1)%10
	if _, err := p.VerifyMFA(ctx, e.FactorID, string(wrong)); providerMessage(t, err) != "Invalid TOTP code entered" {
		t.Fatalf("expected wrong code to be rejected, got %v", err)
	}

	v, err := p.VerifyMFA(ctx, e.FactorID, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Verified {
		t.Fatal("expected verified")
	}

	backup := e.BackupCodes[0]
	if _, err := p.VerifyMFA(ctx, e.FactorID, strings.ToLower(backup)); err != nil {
		t.Fatalf("verify backup code: %v", err)
	}
	if _, err := p.VerifyMFA(ctx, e.FactorID, backup); err == nil {
		t.Fatal("backup code should be single-use")
	}

	if _, err := p.VerifyMFA(ctx, "missing", code); providerMessage(t, err) != "Factor not found" {
		t.Fatalf("expected factor not found, got %v", err)
	}
}

func TestValidTOTPSkew(t *testing.T) {
	// RFC 6238 appendix B seed "12345678901234567890", SHA-1, six digits.
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	tests := []struct {
		name string
		code string
		unix int64
		want bool
	}{
		{"current period", "287082", 59, true},
		{"second vector", "081804", 1111111109, true},
		{"previous period", "287082", 59 + 30, true},
		{"three periods ago", "287082", 59 + 90, false},
		{"wrong length", "28708", 59, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validTOTP(secret, tt.code, time.Unix(tt.unix, 0)); got != tt.want {
				t.Errorf("validTOTP(%s, %d) = %v, want %v", tt.code, tt.unix, got, tt.want)
			}
		})
	}
}

func TestOAuthUnsupported(t *testing.T) {
	if _, err := newTestProvider().OAuthURL("github", ""); err == nil {
		t.Fatal("expected error")
	}
}

var _ identity.Provider = (*Provider)(nil)
