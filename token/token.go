package token

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	secretLength     = 32 // 32 bytes = 256 bits
	redactedPrefix   = 8
	redactedEllipsis = "..."
)

// AccessToken is a tenant-scoped secret. Only one active token exists per tenant.
type AccessToken struct {
	Secret    string     `json:"token"`
	TenantID  string     `json:"clientId"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"` // nil means the token never expires

	digest string
}

// Digest is the reverse index key for the token's secret.
func (t *AccessToken) Digest() string {
	return t.digest
}

// Expired reports whether the token has passed its expiry at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Validation is the outcome of a successful Validate call.
type Validation struct {
	TenantID  string     `json:"clientId"`
	IsMaster  bool       `json:"isMaster"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Summary is the externally visible form of a stored token. The secret is always redacted.
type Summary struct {
	TenantID  string     `json:"clientId"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Redact shortens a secret to a short prefix followed by an ellipsis.
func Redact(secret string) string {
	if len(secret) <= redactedPrefix {
		return redactedEllipsis
	}
	return secret[:redactedPrefix] + redactedEllipsis
}

// DigestSecret returns the hex BLAKE2b-256 digest used to index secrets.
func DigestSecret(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (t *AccessToken) summary() Summary {
	return Summary{
		TenantID:  t.TenantID,
		Token:     Redact(t.Secret),
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
