package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorInvalidArgument        = "CONSENT_INVALID_ARGUMENT"
	ErrorNotInitialized         = "CONSENT_NOT_INITIALIZED"
	ErrorAlreadyInProgress      = "CONSENT_AUTHORIZATION_IN_PROGRESS"
	ErrorSessionInvalid         = "CONSENT_SESSION_INVALID"
	ErrorEmptySession           = "CONSENT_EMPTY_SESSION"
	ErrorAuthorizationDenied    = "CONSENT_AUTHORIZATION_DENIED"
	ErrorWrongRequestCode       = "CONSENT_WRONG_REQUEST_CODE"
	ErrorAuthorizationTimedOut  = "CONSENT_AUTHORIZATION_TIMED_OUT"
	ErrorExternalAppUnavailable = "CONSENT_EXTERNAL_APP_UNAVAILABLE"
	ErrorDecryptionFailure      = "CONSENT_DECRYPTION_FAILURE"
	ErrorServerError            = "CONSENT_SERVER_ERROR"
	ErrorInternal               = "CONSENT_INTERNAL_ERROR"
)

// StatusDecryptionFailure is the synthesized status of a response whose
// encrypted content could not be decrypted.
const StatusDecryptionFailure = http.StatusLengthRequired

// AuthorizationReason classifies a failed authorization attempt.
type AuthorizationReason string

const (
	ReasonAccessDenied     AuthorizationReason = "access_denied"
	ReasonWrongRequestCode AuthorizationReason = "wrong_request_code"
	ReasonInProgress       AuthorizationReason = "in_progress"
	ReasonTimedOut         AuthorizationReason = "timed_out"
	ReasonAppUnavailable   AuthorizationReason = "app_unavailable"
)

const metadataSessionKey = "session_key"

func NewInvalidArgumentError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorInvalidArgument)
}

func NewNotInitializedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorNotInitialized)
}

func NewSessionInvalidError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorSessionInvalid)
}

func NewEmptySessionError() *goerrors.Error {
	return goerrors.New("core: server returned an empty session", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorEmptySession)
}

func NewDecryptionError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "content could not be decrypted"
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(StatusDecryptionFailure).
		WithTextCode(ErrorDecryptionFailure)
}

// NewServerError wraps a non-success API response. The server supplied code
// and reference are kept in the error metadata.
func NewServerError(status int, code string, message string, reference string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("server responded with status %d", status)
	}
	textCode := ErrorServerError
	if status == StatusDecryptionFailure {
		textCode = ErrorDecryptionFailure
	}
	err := goerrors.New(message, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(textCode)
	metadata := map[string]any{}
	if code = strings.TrimSpace(code); code != "" {
		metadata["code"] = code
	}
	if reference = strings.TrimSpace(reference); reference != "" {
		metadata["reference"] = reference
	}
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NewAuthorizationError builds the failure delivered to authorization
// callbacks. A non-nil session is carried along for denied attempts.
func NewAuthorizationError(reason AuthorizationReason, session *Session) *goerrors.Error {
	var err *goerrors.Error
	switch reason {
	case ReasonAccessDenied:
		err = goerrors.New("core: authorization was denied", goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).
			WithTextCode(ErrorAuthorizationDenied)
	case ReasonWrongRequestCode:
		err = goerrors.New("core: result received for a foreign request code", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(ErrorWrongRequestCode)
	case ReasonInProgress:
		err = goerrors.New("core: authorization already in progress", goerrors.CategoryConflict).
			WithCode(http.StatusConflict).
			WithTextCode(ErrorAlreadyInProgress)
	case ReasonTimedOut:
		err = goerrors.New("core: authorization timed out waiting for external app install", goerrors.CategoryOperation).
			WithCode(http.StatusRequestTimeout).
			WithTextCode(ErrorAuthorizationTimedOut)
	case ReasonAppUnavailable:
		err = goerrors.New("core: external app could not handle the authorization request", goerrors.CategoryExternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorExternalAppUnavailable)
	default:
		err = goerrors.New("core: authorization failed", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorInternal)
	}
	if session != nil {
		err.WithMetadata(map[string]any{metadataSessionKey: session.Key})
	}
	return err
}

// AuthorizationReasonOf reports the authorization reason carried by err.
func AuthorizationReasonOf(err error) (AuthorizationReason, bool) {
	var richErr *goerrors.Error
	if err == nil || !goerrors.As(err, &richErr) {
		return "", false
	}
	switch richErr.TextCode {
	case ErrorAuthorizationDenied:
		return ReasonAccessDenied, true
	case ErrorWrongRequestCode:
		return ReasonWrongRequestCode, true
	case ErrorAlreadyInProgress:
		return ReasonInProgress, true
	case ErrorAuthorizationTimedOut:
		return ReasonTimedOut, true
	case ErrorExternalAppUnavailable:
		return ReasonAppUnavailable, true
	}
	return "", false
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if err == nil || !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// MapError normalizes arbitrary errors into the consent error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "in progress"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(ErrorAlreadyInProgress))
	case strings.Contains(msg, "session") && (strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryValidation).WithTextCode(ErrorSessionInvalid))
	case strings.Contains(msg, "decrypt"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryExternal).
			WithCode(StatusDecryptionFailure).
			WithTextCode(ErrorDecryptionFailure))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorInvalidArgument))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorInvalidArgument
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthorizationDenied
	case goerrors.CategoryConflict:
		return ErrorAlreadyInProgress
	case goerrors.CategoryExternal:
		return ErrorServerError
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
