package types

import "time"

// APIKey as persisted. The plaintext key is never stored; only the one-way
// hash survives creation.
type APIKey struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Roles      []string   `json:"roles"`
	KBScopes   []string   `json:"kb_scopes"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// AuthContext is the resolved identity handed to the transport layer after a
// successful key validation.
type AuthContext struct {
	APIKeyID    string       `json:"api_key_id"`
	Roles       []string     `json:"roles"`
	KBScopes    []string     `json:"kb_scopes"`
	Permissions []Permission `json:"permissions"`
}

type AuthEventType string

const (
	AuthEventKeyCreated    AuthEventType = "key_created"
	AuthEventKeyRevoked    AuthEventType = "key_revoked"
	AuthEventKeyValidated  AuthEventType = "key_validated"
	AuthEventValidateError AuthEventType = "key_validation_failed"
)

// AuthEvent is an append-only audit record. Writing one must never block the
// operation being audited.
type AuthEvent struct {
	EventID   string            `json:"event_id"`
	EventType AuthEventType     `json:"event_type"`
	KeyID     string            `json:"key_id,omitempty"`
	Success   bool              `json:"success"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
