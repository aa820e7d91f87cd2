package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeTransportFailure, cause, "调用转写服务失败")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if !stdErrors.Is(fmt.Errorf("outer: %w", err), New(CodeTransportFailure, "")) {
		t.Fatalf("expected code comparison through wrapping")
	}
	if got := CodeOf(fmt.Errorf("outer: %w", err)); got != CodeTransportFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if KindOf(err) != KindTransport {
		t.Fatalf("expected transport kind, got %s", KindOf(err))
	}
	if !RetryableError(err) {
		t.Fatalf("transport failures should be retryable by default")
	}
}

func TestDetailOmitsCode(t *testing.T) {
	err := Wrap(CodeNotFound, stdErrors.New("404"), "blob not found")
	if got := DetailOf(err); got != "blob not found: 404" {
		t.Fatalf("unexpected detail: %q", got)
	}
	if got := DetailOf(stdErrors.New("plain")); got != "plain" {
		t.Fatalf("unexpected detail for plain error: %q", got)
	}
	if err.Error() != "[NOT_FOUND] blob not found: 404" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Kind: KindExternal})

	err := New(code, "")
	if err.Message() != "custom" {
		t.Fatalf("expected registered default message, got %q", err.Message())
	}
	if err.Severity() != SeverityWarning {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
	if AttributesOf("NOT_REGISTERED").Message != "unknown error" {
		t.Fatalf("unregistered codes should fall back to UNKNOWN")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	err := New(CodeTimeout, "slow", WithRetryable(false), WithSeverity(SeverityCritical), WithMetadata("target", "transcriber"))
	if err.Retryable() {
		t.Fatalf("retryable override ignored")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("severity override ignored")
	}
	if err.Metadata()["target"] != "transcriber" {
		t.Fatalf("metadata missing: %+v", err.Metadata())
	}
}
