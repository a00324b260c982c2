package user

import (
	"fmt"
	"strings"
	"unicode"
)

// SpecialChars is the set of characters accepted as "special" by the policy.
const SpecialChars = `!@#$%^&*(),.?":{}|<>`

// PasswordPolicy describes the complexity rules for new passwords.
type PasswordPolicy struct {
	MinLength           int  `yaml:"min_length" json:"min_length"`
	RequireNumbers      bool `yaml:"require_numbers" json:"require_numbers"`
	RequireSpecialChars bool `yaml:"require_special_chars" json:"require_special_chars"`
	RequireUppercase    bool `yaml:"require_uppercase" json:"require_uppercase"`
}

// DefaultPasswordPolicy returns the policy enforced by the in-process provider.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           8,
		RequireNumbers:      true,
		RequireSpecialChars: true,
		RequireUppercase:    true,
	}
}

// Check returns every rule the password violates. An empty result means the
// password is acceptable.
func (p PasswordPolicy) Check(password string) []string {
	var problems []string
	if len(password) < p.MinLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters", p.MinLength))
	}
	if p.RequireNumbers && !strings.ContainsFunc(password, unicode.IsDigit) {
		problems = append(problems, "Password must contain at least one number")
	}
	if p.RequireSpecialChars && !strings.ContainsAny(password, SpecialChars) {
		problems = append(problems, "Password must contain at least one special character")
	}
	if p.RequireUppercase && !strings.ContainsFunc(password, unicode.IsUpper) {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	return problems
}
