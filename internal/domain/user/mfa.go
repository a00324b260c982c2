package user

import (
	"crypto/rand"
	"fmt"
)

// backupAlphabet omits characters that are easy to confuse (0/O, 1/I/L).
const backupAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// DefaultBackupCodes is the number of backup codes issued on MFA enrollment.
const DefaultBackupCodes = 10

// Enrollment is returned when a TOTP factor is enrolled.
type Enrollment struct {
	FactorID    string   `json:"factor_id"`
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// Verification is the result of verifying an MFA challenge code.
type Verification struct {
	Verified bool     `json:"verified"`
	Session  *Session `json:"session,omitempty"`
}

// GenerateBackupCodes returns count codes formatted as XXXX-XXXX.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	buf := make([]byte, 8)
	for range count {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("read random: %w", err)
		}
		code := make([]byte, 0, 9)
		for i, b := range buf {
			if i == 4 {
				code = append(code, '-')
			}
			code = append(code, backupAlphabet[int(b)%len(backupAlphabet)])
		}
		codes = append(codes, string(code))
	}
	return codes, nil
}
