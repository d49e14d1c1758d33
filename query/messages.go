package query

import (
	"strings"

	"github.com/goliatone/go-consent/core"
	sqlstore "github.com/goliatone/go-consent/store/sql"
)

const (
	TypeFileList       = "consent.query.content.file_list"
	TypeAccounts       = "consent.query.content.accounts"
	TypeFileContent    = "consent.query.content.file"
	TypeFileJSON       = "consent.query.content.file_json"
	TypeCurrentSession = "consent.query.session.current"
	TypeListActivity   = "consent.query.activity.list"
)

// FileListMessage reads the file list. A nil Session uses the current one.
type FileListMessage struct {
	Session *core.Session
}

func (FileListMessage) Type() string { return TypeFileList }

func (FileListMessage) Validate() error { return nil }

type AccountsMessage struct {
	Session *core.Session
}

func (AccountsMessage) Type() string { return TypeAccounts }

func (AccountsMessage) Validate() error { return nil }

type FileContentMessage struct {
	FileID  string
	Session *core.Session
}

func (FileContentMessage) Type() string { return TypeFileContent }

func (m FileContentMessage) Validate() error {
	return validateFileID(m.FileID)
}

type FileJSONMessage struct {
	FileID  string
	Session *core.Session
}

func (FileJSONMessage) Type() string { return TypeFileJSON }

func (m FileJSONMessage) Validate() error {
	return validateFileID(m.FileID)
}

type CurrentSessionMessage struct{}

func (CurrentSessionMessage) Type() string { return TypeCurrentSession }

func (CurrentSessionMessage) Validate() error { return nil }

type ListActivityMessage struct {
	Filter sqlstore.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "must not be before from")
	}
	return nil
}

func validateFileID(fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return queryValidationError("file_id", "is required")
	}
	return nil
}
