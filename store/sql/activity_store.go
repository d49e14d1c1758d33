package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-consent/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ActivityFilter struct {
	Event      core.EventKind
	Status     string
	ContractID string
	FileID     string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

type ActivityPage struct {
	Items      []core.ActivityEntry
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

// Record stores entry with redacted metadata. The session key itself is
// replaced by its hash.
func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	event := strings.TrimSpace(string(entry.Event))
	if event == "" {
		return fmt.Errorf("sqlstore: activity event is required")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := entry.OccurredAt.UTC()
	if entry.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	status := strings.TrimSpace(entry.Status)
	if status == "" {
		status = core.ActivityStatusSuccess
	}
	sessionRef := ""
	if key := strings.TrimSpace(entry.SessionKey); key != "" {
		sessionRef = SessionKeyHash(key)
	}

	_, err := s.repo.Create(ctx, &activityRecord{
		ID:         id,
		Event:      event,
		Status:     status,
		SessionRef: sessionRef,
		ContractID: strings.TrimSpace(entry.ContractID),
		AppID:      strings.TrimSpace(entry.AppID),
		FileID:     strings.TrimSpace(entry.FileID),
		Error:      strings.TrimSpace(entry.Error),
		Metadata:   core.RedactSensitiveMap(entry.Metadata),
		OccurredAt: occurredAt,
		CreatedAt:  time.Now().UTC(),
	})
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if s == nil || s.repo == nil {
		return ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("occurred_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if event := strings.TrimSpace(string(filter.Event)); event != "" {
		selectors = append(selectors, repository.SelectBy("event", "=", event))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if contractID := strings.TrimSpace(filter.ContractID); contractID != "" {
		selectors = append(selectors, repository.SelectBy("contract_id", "=", contractID))
	}
	if fileID := strings.TrimSpace(filter.FileID); fileID != "" {
		selectors = append(selectors, repository.SelectBy("file_id", "=", fileID))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	hasNext := offset+len(items) < total
	nextCursor := ""
	if hasNext {
		nextCursor = strconv.Itoa(offset + len(items))
	}
	return ActivityPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextCursor,
	}, nil
}

// Prune deletes entries that occurred before cutoff.
func (s *ActivityStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*activityRecord)(nil)).
		Where("occurred_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
