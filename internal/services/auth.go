package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/apierr"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/repos"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

// KeyPrefix identifies keys minted by this service. The body is 256 bits of
// randomness, hex-encoded; only the SHA-256 of the full plaintext is stored.
const KeyPrefix = "kgb_"

type CreatedKey struct {
	KeyID     string     `json:"key_id"`
	Name      string     `json:"name"`
	Plaintext string     `json:"api_key"`
	Roles     []string   `json:"roles"`
	KBScopes  []string   `json:"kb_scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AuthService interface {
	// CreateKey returns the plaintext exactly once; it is never retrievable
	// afterwards.
	CreateKey(ctx context.Context, name string, roles, kbScopes []string, expiresInDays int) (*CreatedKey, error)
	// ValidateKey returns nil (no error) for unknown, inactive, and expired
	// keys; errors are reserved for store failures.
	ValidateKey(ctx context.Context, plaintext string) (*types.AuthContext, error)
	RevokeKey(ctx context.Context, keyID string) (bool, error)
	// RecordMissingKey audits a request that presented no API key at all,
	// so unauthenticated requests still leave an audit trail.
	RecordMissingKey(ctx context.Context)
	// Authorize implements the permission check consumed by the transport
	// layer: the permission set must contain (resource, action) and the key's
	// scopes must cover the target KB ("*" covers everything).
	Authorize(authCtx *types.AuthContext, resource, action, kbID string) error
}

type authService struct {
	keyRepo repos.APIKeyRepo
	log     *logger.Logger
}

func NewAuthService(keyRepo repos.APIKeyRepo, baseLog *logger.Logger) AuthService {
	return &authService{
		keyRepo: keyRepo,
		log:     baseLog.With("service", "AuthService"),
	}
}

func (s *authService) CreateKey(ctx context.Context, name string, roles, kbScopes []string, expiresInDays int) (*CreatedKey, error) {
	if name == "" {
		return nil, apierr.BadRequest("INVALID_KEY_NAME", fmt.Errorf("name is required"))
	}
	if len(roles) == 0 {
		return nil, apierr.BadRequest("INVALID_KEY_ROLES", fmt.Errorf("at least one role is required"))
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	plaintext := KeyPrefix + hex.EncodeToString(raw)

	key := &types.APIKey{
		KeyID:     uuid.NewString(),
		Name:      name,
		KeyHash:   HashKey(plaintext),
		Roles:     roles,
		KBScopes:  kbScopes,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if expiresInDays > 0 {
		exp := key.CreatedAt.Add(time.Duration(expiresInDays) * 24 * time.Hour)
		key.ExpiresAt = &exp
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.audit(ctx, types.AuthEventKeyCreated, key.KeyID, true, map[string]string{"name": name})
	s.log.Info("api key created", "key_id", key.KeyID, "name", name, "roles", roles)

	return &CreatedKey{
		KeyID:     key.KeyID,
		Name:      key.Name,
		Plaintext: plaintext,
		Roles:     key.Roles,
		KBScopes:  key.KBScopes,
		ExpiresAt: key.ExpiresAt,
	}, nil
}

func (s *authService) ValidateKey(ctx context.Context, plaintext string) (*types.AuthContext, error) {
	key, err := s.keyRepo.GetByHash(ctx, HashKey(plaintext))
	if err != nil {
		return nil, fmt.Errorf("validate api key: %w", err)
	}
	now := time.Now().UTC()

	switch {
	case key == nil:
		s.audit(ctx, types.AuthEventValidateError, "", false, map[string]string{"reason": "unknown_key"})
		return nil, nil
	case !key.IsActive:
		s.audit(ctx, types.AuthEventValidateError, key.KeyID, false, map[string]string{"reason": "inactive"})
		return nil, nil
	case key.ExpiresAt != nil && key.ExpiresAt.Before(now):
		s.audit(ctx, types.AuthEventValidateError, key.KeyID, false, map[string]string{"reason": "expired"})
		return nil, nil
	}

	perms, err := s.keyRepo.ResolvePermissions(ctx, key.Roles)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	if err := s.keyRepo.TouchLastUsed(ctx, key.KeyID, now); err != nil {
		s.log.Warn("touch last_used_at failed", "key_id", key.KeyID, "error", err)
	}

	s.audit(ctx, types.AuthEventKeyValidated, key.KeyID, true, nil)
	return &types.AuthContext{
		APIKeyID:    key.KeyID,
		Roles:       key.Roles,
		KBScopes:    key.KBScopes,
		Permissions: perms,
	}, nil
}

func (s *authService) RevokeKey(ctx context.Context, keyID string) (bool, error) {
	revoked, err := s.keyRepo.Revoke(ctx, keyID)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	s.audit(ctx, types.AuthEventKeyRevoked, keyID, revoked, nil)
	if revoked {
		s.log.Info("api key revoked", "key_id", keyID)
	}
	return revoked, nil
}

func (s *authService) RecordMissingKey(ctx context.Context) {
	s.audit(ctx, types.AuthEventValidateError, "", false, map[string]string{"reason": "missing_key"})
}

func (s *authService) Authorize(authCtx *types.AuthContext, resource, action, kbID string) error {
	if authCtx == nil {
		return apierr.Unauthorized("UNAUTHENTICATED", fmt.Errorf("missing auth context"))
	}
	permitted := false
	for _, p := range authCtx.Permissions {
		if p.Resource == resource && p.Action == action {
			permitted = true
			break
		}
	}
	if !permitted {
		return apierr.Forbidden("FORBIDDEN", fmt.Errorf("missing permission %s:%s", resource, action))
	}
	if kbID == "" {
		return nil
	}
	for _, scope := range authCtx.KBScopes {
		if scope == "*" || scope == kbID {
			return nil
		}
	}
	return apierr.Forbidden("KB_SCOPE", fmt.Errorf("key is not scoped to %s", kbID))
}

// audit appends an auth event; failures are logged and swallowed so auditing
// can never block the operation being audited.
func (s *authService) audit(ctx context.Context, eventType types.AuthEventType, keyID string, success bool, metadata map[string]string) {
	ev := &types.AuthEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		KeyID:     keyID,
		Success:   success,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := s.keyRepo.AppendAuthEvent(ctx, ev); err != nil {
		s.log.Warn("audit append failed", "event_type", string(eventType), "error", err)
	}
	observability.Current().IncAuthEvent(string(eventType), success)
}

func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
