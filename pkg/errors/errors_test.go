package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		publicMsg string
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed"},
		{code: CodeIdempotency, status: http.StatusOK, publicMsg: "duplicate delivery ignored"},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
	}
	for _, tc := range cases {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.code, tc.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tc.publicMsg {
			t.Errorf("%s: expected message %q, got %q", tc.code, tc.publicMsg, meta.PublicMessage)
		}
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NO_SUCH_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestDuplicateDeliveryAcksWithSuccessStatus(t *testing.T) {
	// provider webhooks must see 2xx on a duplicate or they keep retrying
	if got := MetadataFor(CodeIdempotency).HTTPStatus; got != http.StatusOK {
		t.Fatalf("expected 200 for duplicate delivery, got %d", got)
	}
}

func TestWrapPreservesCauseChain(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "charging mandate")

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to match its cause")
	}
	if wrapped.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: charging mandate" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(CodeValidation, nil, "amount is negative")
	if err.Unwrap() != nil {
		t.Fatal("expected no cause")
	}
	if err.Message() != "amount is negative" {
		t.Fatalf("unexpected message %q", err.Message())
	}
}

func TestAsFindsTypedErrorThroughWrapping(t *testing.T) {
	typed := New(CodeStateConflict, "subscription already finished")
	chained := fmt.Errorf("activating: %w", typed)

	got := As(chained)
	if got == nil || got.Code() != CodeStateConflict {
		t.Fatalf("expected typed error through the chain, got %v", got)
	}
	if As(errors.New("plain")) != nil {
		t.Fatal("expected nil for untyped error")
	}
}

func TestWithDetailsRoundTrip(t *testing.T) {
	details := map[string]string{"field": "is required"}
	err := New(CodeValidation, "validation failed").WithDetails(details)
	got, ok := err.Details().(map[string]string)
	if !ok || got["field"] != "is required" {
		t.Fatalf("unexpected details %v", err.Details())
	}
}
