package user

import (
	"strings"
	"testing"
	"time"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Credentials
		wantErr string
	}{
		{name: "valid", req: Credentials{Email: "a@b.com", Password: "secret"}},
		{name: "missing email", req: Credentials{Password: "secret"}, wantErr: "email is required"},
		{name: "invalid email", req: Credentials{Email: "bad", Password: "secret"}, wantErr: "invalid email format"},
		{name: "missing password", req: Credentials{Email: "a@b.com"}, wantErr: "password is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if got := err.Error(); got != tt.wantErr {
				t.Fatalf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	s := Session{ExpiresAt: now.Unix() + 60}
	if s.Expired(now) {
		t.Error("session should not be expired yet")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("session should be expired at ExpiresAt")
	}
	if (&Session{}).Expired(now) {
		t.Error("zero ExpiresAt should never expire")
	}
}

func TestPasswordPolicy_Check(t *testing.T) {
	p := DefaultPasswordPolicy()
	tests := []struct {
		password string
		problems int
	}{
		{"Str0ng!pass", 0},
		{"short", 4},
		{"alllowercase1!", 1},
		{"NoDigits!!", 1},
		{"NoSpecial123", 1},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := p.Check(tt.password)
			if len(got) != tt.problems {
				t.Fatalf("Check(%q) = %v, want %d problems", tt.password, got, tt.problems)
			}
		})
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(DefaultBackupCodes)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(codes) != DefaultBackupCodes {
		t.Fatalf("got %d codes, want %d", len(codes), DefaultBackupCodes)
	}
	for _, c := range codes {
		if len(c) != 9 || c[4] != '-' {
			t.Errorf("code %q is not XXXX-XXXX", c)
		}
		for _, r := range strings.ReplaceAll(c, "-", "") {
			if !strings.ContainsRune(backupAlphabet, r) {
				t.Errorf("code %q contains %q outside the alphabet", c, r)
			}
		}
	}
}

func TestMessageRewrites(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"sign-in invalid", SignInMessage, "Invalid login credentials", MsgInvalidLogin},
		{"sign-in unconfirmed", SignInMessage, "Email not confirmed", MsgEmailUnverified},
		{"sign-in unknown user", SignInMessage, "User not found", MsgNoAccount},
		{"sign-in passthrough", SignInMessage, "database unavailable", "database unavailable"},
		{"reset unknown user", ResetMessage, "User not found", MsgNoAccountReset},
		{"reset passthrough", ResetMessage, "Invalid login", "Invalid login"},
		{"weak password", UpdatePasswordMessage, "Password should be a stronger password", MsgWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
