package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-consent/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ContentKey             = "fileContent"
	DefaultContentType     = "application/json"
	DecryptionFailureCode  = "Decryption failure"
	decryptionFailureError = "Failed to decrypt content"
)

// DecryptingDoer is an HTTPDoer stage that decrypts the file content field of
// whitelisted responses. Responses it does not act on pass through untouched
// and decrypt failures become a 411 response with a structured error body.
type DecryptingDoer struct {
	Next      HTTPDoer
	Decrypter core.ContentDecrypter
	Matcher   *PathMatcher
	Logger    core.Logger
}

func NewDecryptingDoer(next HTTPDoer, decrypter core.ContentDecrypter, matcher *PathMatcher, logger core.Logger) *DecryptingDoer {
	if next == nil {
		next = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &DecryptingDoer{
		Next:      next,
		Decrypter: decrypter,
		Matcher:   matcher,
		Logger:    glog.Ensure(logger),
	}
}

func (d *DecryptingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.Next.Do(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !d.initialized() {
		return resp, nil
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return resp, nil
	}
	if !d.Matcher.Match(req.URL) {
		return resp, nil
	}

	original, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(original))

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(original, &envelope); err != nil {
		return resp, nil
	}
	cipherText, ok := textField(envelope, ContentKey)
	if !ok {
		return resp, nil
	}

	plaintext, err := d.Decrypter.Decrypt(req.Context(), []byte(cipherText))
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.logger().Warn("content decryption failed", "path", req.URL.Path, "error", err)
		return decryptionFailureResponse(resp), nil
	}
	if len(bytes.TrimSpace(plaintext)) == 0 {
		return resp, nil
	}

	var body []byte
	if IsAccountsPath(req.URL) {
		body = plaintext
	} else {
		if !json.Valid(plaintext) {
			d.logger().Debug("decrypted content is not json, response left unchanged", "path", req.URL.Path)
			return resp, nil
		}
		envelope[ContentKey] = json.RawMessage(plaintext)
		if body, err = json.Marshal(envelope); err != nil {
			return resp, nil
		}
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = DefaultContentType
	}
	replaceBody(resp, body, contentType)
	return resp, nil
}

func (d *DecryptingDoer) initialized() bool {
	if d == nil || d.Decrypter == nil || d.Matcher.Len() == 0 {
		return false
	}
	if reporter, ok := d.Decrypter.(core.ReadinessReporter); ok {
		return reporter.Ready()
	}
	return true
}

func (d *DecryptingDoer) logger() core.Logger {
	return glog.Ensure(d.Logger)
}

func textField(envelope map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := envelope[key]
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

func decryptionFailureResponse(original *http.Response) *http.Response {
	body, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{
		Code:      DecryptionFailureCode,
		Message:   decryptionFailureError,
		Reference: "",
	}})
	resp := &http.Response{
		Status:     strconv.Itoa(core.StatusDecryptionFailure) + " " + DecryptionFailureCode,
		StatusCode: core.StatusDecryptionFailure,
		Proto:      original.Proto,
		ProtoMajor: original.ProtoMajor,
		ProtoMinor: original.ProtoMinor,
		Header:     original.Header.Clone(),
		Request:    original.Request,
	}
	replaceBody(resp, body, DefaultContentType)
	return resp
}

func replaceBody(resp *http.Response, body []byte, contentType string) {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Type", contentType)
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Header.Del("Content-Encoding")
}

var _ HTTPDoer = (*DecryptingDoer)(nil)
