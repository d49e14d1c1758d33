package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAuthorizationRequestCode = 762
	DefaultExternalAppPackageID     = "me.digi.app3"
	DefaultAppName                  = "Android SDK App"
	DefaultAPIBaseURL               = "https://api.digi.me/"

	defaultInstallTimeoutMinutes   = 10
	defaultConnectTimeoutSeconds   = 25
	defaultReadWriteTimeoutSeconds = 30
	defaultMaxResponseBodyBytes    = 8 << 20
	defaultClientName              = "consent"
)

type APIConfig struct {
	BaseURL                 string `koanf:"base_url" mapstructure:"base_url"`
	ConnectTimeoutSeconds   int    `koanf:"connect_timeout_seconds" mapstructure:"connect_timeout_seconds"`
	ReadWriteTimeoutSeconds int    `koanf:"read_write_timeout_seconds" mapstructure:"read_write_timeout_seconds"`
	MaxResponseBodyBytes    int64  `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type AuthorizationConfig struct {
	RequestCode           int    `koanf:"request_code" mapstructure:"request_code"`
	InstallTimeoutMinutes int    `koanf:"install_timeout_minutes" mapstructure:"install_timeout_minutes"`
	PackageID             string `koanf:"package_id" mapstructure:"package_id"`
}

type Config struct {
	ClientName    string              `koanf:"client_name" mapstructure:"client_name"`
	AppID         string              `koanf:"app_id" mapstructure:"app_id"`
	AppName       string              `koanf:"app_name" mapstructure:"app_name"`
	ContractIDs   []string            `koanf:"contract_ids" mapstructure:"contract_ids"`
	API           APIConfig           `koanf:"api" mapstructure:"api"`
	Authorization AuthorizationConfig `koanf:"authorization" mapstructure:"authorization"`
	Debug         bool                `koanf:"debug" mapstructure:"debug"`
}

func DefaultConfig() Config {
	return Config{
		ClientName: defaultClientName,
		AppName:    DefaultAppName,
		API: APIConfig{
			BaseURL:                 DefaultAPIBaseURL,
			ConnectTimeoutSeconds:   defaultConnectTimeoutSeconds,
			ReadWriteTimeoutSeconds: defaultReadWriteTimeoutSeconds,
			MaxResponseBodyBytes:    defaultMaxResponseBodyBytes,
		},
		Authorization: AuthorizationConfig{
			RequestCode:           DefaultAuthorizationRequestCode,
			InstallTimeoutMinutes: defaultInstallTimeoutMinutes,
			PackageID:             DefaultExternalAppPackageID,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("core: client_name is required")
	}
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("core: app_id is required")
	}
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return fmt.Errorf("core: api.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: api.base_url is invalid")
	}
	if c.Authorization.RequestCode <= 0 {
		return fmt.Errorf("core: authorization.request_code must be positive")
	}
	if c.Authorization.InstallTimeoutMinutes < 0 {
		return fmt.Errorf("core: authorization.install_timeout_minutes must not be negative")
	}
	for _, id := range c.ContractIDs {
		if !ValidContractID(id) {
			return fmt.Errorf("core: contract id %q is invalid", id)
		}
	}
	return nil
}

func (c Config) InstallTimeout() time.Duration {
	if c.Authorization.InstallTimeoutMinutes <= 0 {
		return defaultInstallTimeoutMinutes * time.Minute
	}
	return time.Duration(c.Authorization.InstallTimeoutMinutes) * time.Minute
}

func (c Config) ConnectTimeout() time.Duration {
	if c.API.ConnectTimeoutSeconds <= 0 {
		return defaultConnectTimeoutSeconds * time.Second
	}
	return time.Duration(c.API.ConnectTimeoutSeconds) * time.Second
}

func (c Config) ReadWriteTimeout() time.Duration {
	if c.API.ReadWriteTimeoutSeconds <= 0 {
		return defaultReadWriteTimeoutSeconds * time.Second
	}
	return time.Duration(c.API.ReadWriteTimeoutSeconds) * time.Second
}

// ResolvedAppName falls back to the default display name sent to the trusted app.
func (c Config) ResolvedAppName() string {
	if name := strings.TrimSpace(c.AppName); name != "" {
		return name
	}
	return DefaultAppName
}
