package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-consent/core"
	"github.com/uptrace/bun"
)

const (
	sessionStatusActive     = "active"
	sessionStatusSuperseded = "superseded"
)

type sessionRecord struct {
	bun.BaseModel `bun:"table:consent_sessions,alias:cs"`

	ID                string     `bun:"id,pk"`
	KeyHash           string     `bun:"key_hash,notnull"`
	EncryptedKey      []byte     `bun:"encrypted_key,notnull"`
	EncryptionKeyID   string     `bun:"encryption_key_id,notnull"`
	EncryptionVersion int        `bun:"encryption_version,notnull"`
	ContractID        string     `bun:"contract_id,notnull"`
	AppID             string     `bun:"app_id,notnull"`
	Status            string     `bun:"status,notnull"`
	ExpiresAt         time.Time  `bun:"expires_at,notnull"`
	InvalidatedAt     *time.Time `bun:"invalidated_at,nullzero"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type activityRecord struct {
	bun.BaseModel `bun:"table:consent_activity,alias:ca"`

	ID         string         `bun:"id,pk"`
	Event      string         `bun:"event,notnull"`
	Status     string         `bun:"status,notnull"`
	SessionRef string         `bun:"session_ref,notnull"`
	ContractID string         `bun:"contract_id,notnull"`
	AppID      string         `bun:"app_id,notnull"`
	FileID     string         `bun:"file_id,notnull"`
	Error      string         `bun:"error,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// toDomain never carries the session key; SessionRef is the key hash.
func (r *activityRecord) toDomain() core.ActivityEntry {
	if r == nil {
		return core.ActivityEntry{}
	}
	metadata := copyAnyMap(r.Metadata)
	if ref := strings.TrimSpace(r.SessionRef); ref != "" {
		metadata["session_ref"] = ref
	}
	return core.ActivityEntry{
		ID:         r.ID,
		Event:      core.EventKind(r.Event),
		Status:     r.Status,
		ContractID: r.ContractID,
		AppID:      r.AppID,
		FileID:     r.FileID,
		Error:      r.Error,
		Metadata:   metadata,
		OccurredAt: r.OccurredAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
