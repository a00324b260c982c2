package user

import "strings"

// User-facing messages for errors detected before or instead of a provider call.
const (
	MsgOffline         = "No internet connection. Please check your network and try again."
	MsgOfflineSignOut  = "No internet connection. Your session will be cleared locally."
	MsgOfflineInit     = "No internet connection. Using cached session if available."
	MsgInvalidLogin    = "Invalid email or password"
	MsgEmailUnverified = "Please verify your email address before signing in"
	MsgNoAccount       = "No account found with this email"
	MsgNoAccountReset  = "No account found with this email address"
	MsgWeakPassword    = "Please use a stronger password. It should include numbers, special characters, and uppercase letters."
)

// rewrite maps a provider substring to the message shown to the user.
type rewrite struct {
	contains string
	message  string
}

var (
	signInRewrites = []rewrite{
		{"Invalid login", MsgInvalidLogin},
		{"Email not confirmed", MsgEmailUnverified},
		{"User not found", MsgNoAccount},
	}
	resetRewrites = []rewrite{
		{"User not found", MsgNoAccountReset},
	}
	updatePasswordRewrites = []rewrite{
		{"stronger password", MsgWeakPassword},
	}
)

// SignInMessage rewrites a provider sign-in error for end users. Unknown
// messages pass through verbatim.
func SignInMessage(providerMsg string) string {
	return apply(signInRewrites, providerMsg)
}

// ResetMessage rewrites a provider password-reset error for end users.
func ResetMessage(providerMsg string) string {
	return apply(resetRewrites, providerMsg)
}

// UpdatePasswordMessage rewrites a provider password-update error for end users.
func UpdatePasswordMessage(providerMsg string) string {
	return apply(updatePasswordRewrites, providerMsg)
}

func apply(rules []rewrite, msg string) string {
	for _, r := range rules {
		if strings.Contains(msg, r.contains) {
			return r.message
		}
	}
	return msg
}
