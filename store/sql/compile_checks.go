package sqlstore

import "github.com/goliatone/go-consent/core"

var (
	_ core.SessionStore = (*SessionStore)(nil)
	_ core.SessionStore = (*CachedSessionStore)(nil)
	_ core.ActivitySink = (*ActivityStore)(nil)
)
