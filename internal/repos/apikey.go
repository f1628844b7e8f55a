package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/graph"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/types"
)

type APIKeyRepo interface {
	Create(ctx context.Context, key *types.APIKey) error
	// GetByHash is the validation path: lookup is by the stored hash, so the
	// plaintext never reaches the store.
	GetByHash(ctx context.Context, keyHash string) (*types.APIKey, error)
	// Revoke returns false when no active key matched.
	Revoke(ctx context.Context, keyID string) (bool, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
	ResolvePermissions(ctx context.Context, roles []string) ([]types.Permission, error)
	AppendAuthEvent(ctx context.Context, ev *types.AuthEvent) error
}

type apiKeyRepo struct {
	store graph.Store
	log   *logger.Logger
}

func NewAPIKeyRepo(store graph.Store, baseLog *logger.Logger) APIKeyRepo {
	return &apiKeyRepo{
		store: store,
		log:   baseLog.With("repo", "APIKeyRepo"),
	}
}

func (r *apiKeyRepo) Create(ctx context.Context, key *types.APIKey) error {
	params := map[string]any{
		"key_id":     key.KeyID,
		"name":       key.Name,
		"key_hash":   key.KeyHash,
		"roles":      key.Roles,
		"kb_scopes":  key.KBScopes,
		"is_active":  key.IsActive,
		"created_at": key.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": timePtrParam(key.ExpiresAt),
	}
	_, err := r.store.ExecuteWrite(ctx, `CREATE (k:ApiKey {
  key_id:     $key_id,
  name:       $name,
  key_hash:   $key_hash,
  roles:      $roles,
  kb_scopes:  $kb_scopes,
  is_active:  $is_active,
  created_at: $created_at,
  expires_at: $expires_at
})`, params)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) GetByHash(ctx context.Context, keyHash string) (*types.APIKey, error) {
	rows, err := r.store.ExecuteRead(ctx, `MATCH (k:ApiKey {key_hash: $key_hash})
RETURN k.key_id AS key_id, k.name AS name, k.key_hash AS key_hash,
       k.roles AS roles, k.kb_scopes AS kb_scopes, k.is_active AS is_active,
       k.created_at AS created_at, k.expires_at AS expires_at,
       k.last_used_at AS last_used_at, k.revoked_at AS revoked_at`,
		map[string]any{"key_hash": keyHash})
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return apiKeyFromRow(rows[0]), nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, keyID string) (bool, error) {
	rows, err := r.store.ExecuteWrite(ctx, `MATCH (k:ApiKey {key_id: $key_id})
WHERE k.is_active = true
SET k.is_active = false, k.revoked_at = $now
RETURN k.key_id AS key_id`,
		map[string]any{
			"key_id": keyID,
			"now":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return len(rows) > 0, nil
}

func (r *apiKeyRepo) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := r.store.ExecuteWrite(ctx, `MATCH (k:ApiKey {key_id: $key_id})
SET k.last_used_at = $at`,
		map[string]any{
			"key_id": keyID,
			"at":     at.UTC().Format(time.RFC3339Nano),
		})
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) ResolvePermissions(ctx context.Context, roles []string) ([]types.Permission, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	rows, err := r.store.ExecuteRead(ctx, `UNWIND $roles AS role
MATCH (r:Role {name: role})-[:HAS_PERMISSION]->(p:Permission)
RETURN DISTINCT p.resource AS resource, p.action AS action`,
		map[string]any{"roles": roles})
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	perms := make([]types.Permission, 0, len(rows))
	for _, row := range rows {
		resource, _ := row["resource"].(string)
		action, _ := row["action"].(string)
		perms = append(perms, types.Permission{Resource: resource, Action: action})
	}
	return perms, nil
}

func (r *apiKeyRepo) AppendAuthEvent(ctx context.Context, ev *types.AuthEvent) error {
	metadataJSON := ""
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode auth event metadata: %w", err)
		}
		metadataJSON = string(b)
	}
	_, err := r.store.ExecuteWrite(ctx, `CREATE (e:AuthEvent {
  event_id:      $event_id,
  event_type:    $event_type,
  key_id:        $key_id,
  success:       $success,
  timestamp:     $timestamp,
  metadata_json: $metadata_json
})`, map[string]any{
		"event_id":      ev.EventID,
		"event_type":    string(ev.EventType),
		"key_id":        ev.KeyID,
		"success":       ev.Success,
		"timestamp":     ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"metadata_json": metadataJSON,
	})
	if err != nil {
		return fmt.Errorf("append auth event: %w", err)
	}
	return nil
}

func apiKeyFromRow(row map[string]any) *types.APIKey {
	key := &types.APIKey{
		CreatedAt: asTime(row["created_at"]),
	}
	key.KeyID, _ = row["key_id"].(string)
	key.Name, _ = row["name"].(string)
	key.KeyHash, _ = row["key_hash"].(string)
	key.Roles = asStrings(row["roles"])
	key.KBScopes = asStrings(row["kb_scopes"])
	key.IsActive, _ = row["is_active"].(bool)
	key.ExpiresAt = asTimePtr(row["expires_at"])
	key.LastUsedAt = asTimePtr(row["last_used_at"])
	key.RevokedAt = asTimePtr(row["revoked_at"])
	return key
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asTimePtr(v any) *time.Time {
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func timePtrParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
