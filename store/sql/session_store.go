package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-consent/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type keyMetadata interface {
	KeyID() string
	Version() int
}

// SessionStore persists sessions with the session key encrypted at rest. At
// most one session is active; saving a new key supersedes the previous one.
type SessionStore struct {
	db      *bun.DB
	repo    repository.Repository[*sessionRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

func NewSessionStore(db *bun.DB, secrets core.SecretProvider) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SessionStore) Save(ctx context.Context, session core.Session) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	key := strings.TrimSpace(session.Key)
	if key == "" {
		return fmt.Errorf("sqlstore: session key is required")
	}
	hash := SessionKeyHash(key)
	now := s.now()

	encrypted, err := s.secrets.Encrypt(ctx, []byte(key))
	if err != nil {
		return fmt.Errorf("sqlstore: encrypt session key: %w", err)
	}
	keyID, version := "", 0
	if meta, ok := s.secrets.(keyMetadata); ok {
		keyID, version = meta.KeyID(), meta.Version()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*sessionRecord)(nil)).
			Set("status = ?", sessionStatusSuperseded).
			Set("updated_at = ?", now).
			Where("status = ?", sessionStatusActive).
			Where("key_hash <> ?", hash).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewUpdate().
			Model((*sessionRecord)(nil)).
			Set("status = ?", sessionStatusActive).
			Set("expires_at = ?", session.ExpiresAt.UTC()).
			Set("contract_id = ?", strings.TrimSpace(session.ContractID)).
			Set("app_id = ?", strings.TrimSpace(session.AppID)).
			Set("invalidated_at = NULL").
			Set("updated_at = ?", now).
			Where("key_hash = ?", hash).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			return nil
		}

		_, err = s.repo.CreateTx(ctx, tx, &sessionRecord{
			ID:                uuid.NewString(),
			KeyHash:           hash,
			EncryptedKey:      encrypted,
			EncryptionKeyID:   keyID,
			EncryptionVersion: version,
			ContractID:        strings.TrimSpace(session.ContractID),
			AppID:             strings.TrimSpace(session.AppID),
			Status:            sessionStatusActive,
			ExpiresAt:         session.ExpiresAt.UTC(),
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		return err
	})
}

// Latest returns the active session, or nil when none is stored.
func (s *SessionStore) Latest(ctx context.Context) (*core.Session, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: session store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", sessionStatusActive),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[0]
	key, err := s.secrets.Decrypt(ctx, record.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: decrypt session key: %w", err)
	}
	return &core.Session{
		Key:        string(key),
		ExpiresAt:  record.ExpiresAt.UTC(),
		ContractID: record.ContractID,
		AppID:      record.AppID,
	}, nil
}

// Invalidate marks the session destroyed. Unknown keys are ignored.
func (s *SessionStore) Invalidate(ctx context.Context, sessionKey string, reason core.SessionDestroyedReason) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return fmt.Errorf("sqlstore: session key is required")
	}
	status := strings.TrimSpace(string(reason))
	if status == "" {
		status = string(core.SessionDestroyedInvalidated)
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*sessionRecord)(nil)).
		Set("status = ?", status).
		Set("invalidated_at = ?", now).
		Set("updated_at = ?", now).
		Where("key_hash = ?", SessionKeyHash(key)).
		Where("status = ?", sessionStatusActive).
		Exec(ctx)
	return err
}

// SessionKeyHash is the lookup reference stored next to the encrypted key.
func SessionKeyHash(sessionKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionKey)))
	return hex.EncodeToString(sum[:])
}
