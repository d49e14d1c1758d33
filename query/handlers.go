package query

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-consent/core"
	sqlstore "github.com/goliatone/go-consent/store/sql"
)

// ContentService is the callback driven content surface of core.Client.
type ContentService interface {
	GetFileListWithSession(ctx context.Context, session *core.Session, callback core.Callback[core.FileList]) error
	GetAccountsWithSession(ctx context.Context, session *core.Session, callback core.Callback[core.Accounts]) error
	GetFileContentWithSession(ctx context.Context, fileID string, session *core.Session, callback core.Callback[core.FileResponse]) error
	GetFileJSONWithSession(ctx context.Context, fileID string, session *core.Session, callback core.Callback[json.RawMessage]) error
	Sessions() *core.SessionManager
}

type ActivityReader interface {
	List(ctx context.Context, filter sqlstore.ActivityFilter) (sqlstore.ActivityPage, error)
}

type FileListQuery struct {
	service ContentService
}

func NewFileListQuery(service ContentService) *FileListQuery {
	return &FileListQuery{service: service}
}

func (q *FileListQuery) Query(ctx context.Context, msg FileListMessage) (core.FileList, error) {
	if q == nil || q.service == nil {
		return core.FileList{}, queryDependencyError("query: content service is required")
	}
	session := sessionOrCurrent(q.service, msg.Session)
	out, err := core.Await(ctx, func(callback core.Callback[core.FileList]) error {
		return q.service.GetFileListWithSession(ctx, session, callback)
	})
	return out.Body, err
}

type AccountsQuery struct {
	service ContentService
}

func NewAccountsQuery(service ContentService) *AccountsQuery {
	return &AccountsQuery{service: service}
}

func (q *AccountsQuery) Query(ctx context.Context, msg AccountsMessage) (core.Accounts, error) {
	if q == nil || q.service == nil {
		return core.Accounts{}, queryDependencyError("query: content service is required")
	}
	session := sessionOrCurrent(q.service, msg.Session)
	out, err := core.Await(ctx, func(callback core.Callback[core.Accounts]) error {
		return q.service.GetAccountsWithSession(ctx, session, callback)
	})
	return out.Body, err
}

type FileContentQuery struct {
	service ContentService
}

func NewFileContentQuery(service ContentService) *FileContentQuery {
	return &FileContentQuery{service: service}
}

func (q *FileContentQuery) Query(ctx context.Context, msg FileContentMessage) (core.FileResponse, error) {
	if q == nil || q.service == nil {
		return core.FileResponse{}, queryDependencyError("query: content service is required")
	}
	if err := msg.Validate(); err != nil {
		return core.FileResponse{}, err
	}
	session := sessionOrCurrent(q.service, msg.Session)
	out, err := core.Await(ctx, func(callback core.Callback[core.FileResponse]) error {
		return q.service.GetFileContentWithSession(ctx, msg.FileID, session, callback)
	})
	return out.Body, err
}

type FileJSONQuery struct {
	service ContentService
}

func NewFileJSONQuery(service ContentService) *FileJSONQuery {
	return &FileJSONQuery{service: service}
}

func (q *FileJSONQuery) Query(ctx context.Context, msg FileJSONMessage) (json.RawMessage, error) {
	if q == nil || q.service == nil {
		return nil, queryDependencyError("query: content service is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	session := sessionOrCurrent(q.service, msg.Session)
	out, err := core.Await(ctx, func(callback core.Callback[json.RawMessage]) error {
		return q.service.GetFileJSONWithSession(ctx, msg.FileID, session, callback)
	})
	return out.Body, err
}

// CurrentSessionQuery returns the current session, failing with a session
// invalid error when it is missing or expired.
type CurrentSessionQuery struct {
	sessions *core.SessionManager
}

func NewCurrentSessionQuery(sessions *core.SessionManager) *CurrentSessionQuery {
	return &CurrentSessionQuery{sessions: sessions}
}

func (q *CurrentSessionQuery) Query(_ context.Context, _ CurrentSessionMessage) (core.Session, error) {
	if q == nil || q.sessions == nil {
		return core.Session{}, queryDependencyError("query: session manager is required")
	}
	if err := q.sessions.Validate(); err != nil {
		return core.Session{}, err
	}
	current := q.sessions.Current()
	if current == nil {
		return core.Session{}, core.NewSessionInvalidError("query: no current session")
	}
	return *current, nil
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (sqlstore.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return sqlstore.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	if err := msg.Validate(); err != nil {
		return sqlstore.ActivityPage{}, err
	}
	return q.reader.List(ctx, msg.Filter)
}

func sessionOrCurrent(service ContentService, session *core.Session) *core.Session {
	if session != nil {
		return session
	}
	return service.Sessions().Current()
}
