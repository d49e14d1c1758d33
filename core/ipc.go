package core

import "strings"

const (
	AuthorizationAction   = "android.intent.action.DIGI_PERMISSION_REQUEST"
	AuthorizationPayload  = "text/plain"
	ExtraSessionToken     = "KEY_SESSION_TOKEN"
	ExtraAppID            = "KEY_APP_ID"
	ExtraAppName          = "KEY_APP_NAME"
	storeListingPrefix    = "market://details?id="
	webStoreListingPrefix = "https://play.google.com/store/apps/details?id="
)

// ResultCode is the binary outcome reported by the trusted app.
type ResultCode int

const (
	ResultGranted ResultCode = -1
	ResultDenied  ResultCode = 0
)

// AuthorizationRequest is the envelope sent to the trusted app. RequestCode
// correlates the asynchronous result.
type AuthorizationRequest struct {
	PackageID   string            `json:"package_id"`
	Action      string            `json:"action"`
	PayloadType string            `json:"payload_type"`
	RequestCode int               `json:"request_code"`
	Extras      map[string]string `json:"extras,omitempty"`
}

// NewAuthorizationRequest builds the envelope. Extras are only set when a
// session exists.
func NewAuthorizationRequest(cfg Config, session *Session) AuthorizationRequest {
	request := AuthorizationRequest{
		PackageID:   packageID(cfg),
		Action:      AuthorizationAction,
		PayloadType: AuthorizationPayload,
		RequestCode: cfg.Authorization.RequestCode,
	}
	if session != nil && !session.Empty() {
		request.Extras = map[string]string{
			ExtraSessionToken: session.Key,
			ExtraAppID:        cfg.AppID,
			ExtraAppName:      cfg.ResolvedAppName(),
		}
	}
	return request
}

// StoreTargets lists the install locations of the trusted app, preferred first.
func StoreTargets(pkg string) []string {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		pkg = DefaultExternalAppPackageID
	}
	return []string{storeListingPrefix + pkg, webStoreListingPrefix + pkg}
}

func packageID(cfg Config) string {
	if pkg := strings.TrimSpace(cfg.Authorization.PackageID); pkg != "" {
		return pkg
	}
	return DefaultExternalAppPackageID
}
