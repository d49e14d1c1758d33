package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		status   int
	}{
		{err: stderrors.New("core: authorization already in progress"), textCode: ErrorAlreadyInProgress, status: http.StatusConflict},
		{err: stderrors.New("core: session expired"), textCode: ErrorSessionInvalid, status: http.StatusBadRequest},
		{err: stderrors.New("cipher: decrypt failed"), textCode: ErrorDecryptionFailure, status: StatusDecryptionFailure},
		{err: stderrors.New("core: app_id is required"), textCode: ErrorInvalidArgument, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%q: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}

func TestMapError_KeepsRichErrors(t *testing.T) {
	original := NewAuthorizationError(ReasonTimedOut, nil)
	mapped := MapError(original)
	if mapped.TextCode != ErrorAuthorizationTimedOut || mapped.Code != http.StatusRequestTimeout {
		t.Fatalf("expected timeout envelope to survive, got %q/%d", mapped.TextCode, mapped.Code)
	}

	bare := goerrors.New("upstream", goerrors.CategoryExternal)
	mapped = MapError(bare)
	if mapped.TextCode != ErrorServerError || mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected external defaults, got %q/%d", mapped.TextCode, mapped.Code)
	}
}

func TestNewServerError_CarriesServerFields(t *testing.T) {
	err := NewServerError(http.StatusNotFound, "FileNotFound", "file missing", "ref-1")
	if err.Code != http.StatusNotFound || err.TextCode != ErrorServerError {
		t.Fatalf("unexpected envelope %d/%q", err.Code, err.TextCode)
	}
	if err.Metadata["code"] != "FileNotFound" || err.Metadata["reference"] != "ref-1" {
		t.Fatalf("unexpected metadata %#v", err.Metadata)
	}

	decrypt := NewServerError(StatusDecryptionFailure, "Decryption failure", "bad key", "")
	if decrypt.TextCode != ErrorDecryptionFailure {
		t.Fatalf("expected decryption text code, got %q", decrypt.TextCode)
	}
	if _, ok := decrypt.Metadata["reference"]; ok {
		t.Fatalf("expected empty reference to be omitted")
	}
	if generic := NewServerError(http.StatusInternalServerError, "", "", ""); generic.Message == "" {
		t.Fatalf("expected default message")
	}
}

func TestNewAuthorizationError_Reasons(t *testing.T) {
	for _, reason := range []AuthorizationReason{
		ReasonAccessDenied,
		ReasonWrongRequestCode,
		ReasonInProgress,
		ReasonTimedOut,
		ReasonAppUnavailable,
	} {
		err := NewAuthorizationError(reason, nil)
		got, ok := AuthorizationReasonOf(err)
		if !ok || got != reason {
			t.Fatalf("expected reason %q, got %q", reason, got)
		}
	}
	if _, ok := AuthorizationReasonOf(stderrors.New("plain")); ok {
		t.Fatalf("expected plain errors to carry no reason")
	}

	denied := NewAuthorizationError(ReasonAccessDenied, validSession("key-9"))
	if denied.Metadata[metadataSessionKey] != "key-9" {
		t.Fatalf("expected session key metadata, got %#v", denied.Metadata)
	}
}
