package query

import (
	"encoding/json"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-consent/core"
	sqlstore "github.com/goliatone/go-consent/store/sql"
)

var (
	_ gocmd.Querier[FileListMessage, core.FileList]             = (*FileListQuery)(nil)
	_ gocmd.Querier[AccountsMessage, core.Accounts]             = (*AccountsQuery)(nil)
	_ gocmd.Querier[FileContentMessage, core.FileResponse]      = (*FileContentQuery)(nil)
	_ gocmd.Querier[FileJSONMessage, json.RawMessage]           = (*FileJSONQuery)(nil)
	_ gocmd.Querier[CurrentSessionMessage, core.Session]        = (*CurrentSessionQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, sqlstore.ActivityPage] = (*ListActivityQuery)(nil)
	_ ContentService                                            = (*core.Client)(nil)
	_ ActivityReader                                            = (*sqlstore.ActivityStore)(nil)
)
