package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-consent/core"
)

type sessionRequest struct {
	AppID      string `json:"appId"`
	ContractID string `json:"contractId"`
}

type sessionResponse struct {
	SessionKey string `json:"sessionKey"`
	Expiry     int64  `json:"expiry"`
}

// APIClient talks to the permission access API. Instances are bound to the
// session they were created for, or to none for session issuance.
type APIClient struct {
	rest      *RESTAdapter
	endpoints *EndpointRegistry
	session   *core.Session
	timeout   time.Duration
}

type APIClientOption func(*APIClient)

func WithEndpoints(registry *EndpointRegistry) APIClientOption {
	return func(c *APIClient) {
		if registry != nil {
			c.endpoints = registry
		}
	}
}

func WithBoundSession(session *core.Session) APIClientOption {
	return func(c *APIClient) {
		c.session = session
	}
}

func NewAPIClient(cfg core.Config, doer HTTPDoer, opts ...APIClientOption) (*APIClient, error) {
	if doer == nil {
		doer = NewHTTPClient(cfg)
	}
	client := &APIClient{
		endpoints: NewDefaultEndpointRegistry(),
		timeout:   cfg.ConnectTimeout() + cfg.ReadWriteTimeout(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.rest = NewRESTAdapter(doer, cfg.API.BaseURL, client.endpoints, cfg.API.MaxResponseBodyBytes)
	return client, nil
}

// NewAPIClientFactory builds one client per session over a shared doer.
func NewAPIClientFactory(cfg core.Config, doer HTTPDoer) core.APIClientFactory {
	if doer == nil {
		doer = NewHTTPClient(cfg)
	}
	return func(session *core.Session) (core.APIClient, error) {
		return NewAPIClient(cfg, doer, WithBoundSession(session))
	}
}

// NewHTTPClient applies the configured connect and read/write timeouts.
func NewHTTPClient(cfg core.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext
	transport.ResponseHeaderTimeout = cfg.ReadWriteTimeout()
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ConnectTimeout() + cfg.ReadWriteTimeout(),
	}
}

// Session returns the session the client is bound to, if any.
func (c *APIClient) Session() *core.Session {
	return c.session
}

func (c *APIClient) CreateSession(ctx context.Context, contract core.Contract) (*core.Session, error) {
	var decoded sessionResponse
	request := sessionRequest{AppID: contract.AppID, ContractID: contract.ContractID}
	if err := c.call(ctx, http.MethodPost, EndpointSession, nil, request, &decoded); err != nil {
		return nil, err
	}
	if strings.TrimSpace(decoded.SessionKey) == "" {
		return nil, nil
	}
	return &core.Session{
		Key:        decoded.SessionKey,
		ExpiresAt:  time.UnixMilli(decoded.Expiry).UTC(),
		ContractID: contract.ContractID,
		AppID:      contract.AppID,
	}, nil
}

func (c *APIClient) FileList(ctx context.Context, sessionKey string) (core.FileList, error) {
	var files core.FileList
	err := c.call(ctx, http.MethodGet, EndpointFileList, map[string]string{VarSessionKey: sessionKey}, nil, &files)
	return files, err
}

func (c *APIClient) Accounts(ctx context.Context, sessionKey string) (core.Accounts, error) {
	var accounts core.Accounts
	err := c.call(ctx, http.MethodGet, EndpointAccounts, map[string]string{VarSessionKey: sessionKey}, nil, &accounts)
	return accounts, err
}

func (c *APIClient) FileContent(ctx context.Context, sessionKey string, fileID string) (core.FileResponse, error) {
	var content core.FileResponse
	err := c.call(ctx, http.MethodGet, EndpointFile, fileValues(sessionKey, fileID), nil, &content)
	content.FileID = fileID
	return content, err
}

func (c *APIClient) FileJSON(ctx context.Context, sessionKey string, fileID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.call(ctx, http.MethodGet, EndpointFile, fileValues(sessionKey, fileID), nil, &raw)
	return raw, err
}

func fileValues(sessionKey string, fileID string) map[string]string {
	return map[string]string{VarSessionKey: sessionKey, VarFileID: fileID}
}

func (c *APIClient) call(ctx context.Context, method string, endpoint string, values map[string]string, body any, out any) error {
	return c.rest.Invoke(ctx, Call{
		Method:   method,
		Endpoint: endpoint,
		Values:   values,
		Body:     body,
		Timeout:  c.timeout,
	}, out)
}

var _ core.APIClient = (*APIClient)(nil)
