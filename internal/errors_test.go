package internal

import (
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrInvalidURL, "scheme must be http or https").
		WithURL("https://user@example.com/secret?token=abc").
		WithSuggestion("use an absolute http(s) URL")

	result := err.Error()
	if !strings.Contains(result, "InvalidURL") {
		t.Error("expected error string to contain the error kind")
	}
	if !strings.Contains(result, "scheme must be http or https") {
		t.Error("expected error string to contain the message")
	}
	if !strings.Contains(result, "suggestion:") {
		t.Error("expected error string to contain the suggestion")
	}
	if strings.Contains(result, "token=abc") {
		t.Error("expected the URL's query string to be redacted")
	}
}

func TestAppError_DetailedError(t *testing.T) {
	err := NewAppError(ErrOutputPathInvalid, "cannot create directory").
		WithContext("path", "/readonly/dir").
		WithSuggestion("check directory permissions")

	result := err.DetailedError()
	if !strings.Contains(result, "ERROR") {
		t.Error("expected severity in detailed error")
	}
	if !strings.Contains(result, "OutputPathInvalid") {
		t.Error("expected kind in detailed error")
	}
	if !strings.Contains(result, "path=/readonly/dir") {
		t.Error("expected context in detailed error")
	}
	if !strings.Contains(result, "Suggestion:") {
		t.Error("expected suggestion in detailed error")
	}
}

func TestAppError_IsCritical(t *testing.T) {
	if NewAppError(ErrInvalidURL, "x").IsCritical() {
		t.Error("ErrInvalidURL should not default to critical severity")
	}
}

func TestAppErrorKind_String(t *testing.T) {
	tests := []struct {
		kind AppErrorKind
		want string
	}{
		{ErrInvalidURL, "InvalidURL"},
		{ErrInvalidChecksumSpec, "InvalidChecksumSpec"},
		{ErrConfigKeyNotFound, "ConfigKeyNotFound"},
		{ErrUnsupportedOption, "UnsupportedOption"},
		{ErrInvalidProxyURL, "InvalidProxyURL"},
		{ErrOutputPathInvalid, "OutputPathInvalid"},
		{ErrResumeDataCorrupted, "ResumeDataCorrupted"},
		{ErrResumeIncompatible, "ResumeIncompatible"},
		{ErrPartialFileInvalid, "PartialFileInvalid"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("AppErrorKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorSeverity_String(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityError, "ERROR"},
		{SeverityCritical, "CRITICAL"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.expected {
				t.Errorf("ErrorSeverity.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("connections", "must be between 1 and 32").
		WithSuggestion("pass a value in [1, 32]")

	result := err.Error()
	if !strings.Contains(result, "validation error for connections") {
		t.Error("expected error to contain the field name")
	}
	if !strings.Contains(result, "must be between 1 and 32") {
		t.Error("expected error to contain the message")
	}
	if !strings.Contains(result, "suggestion:") {
		t.Error("expected error to contain the suggestion")
	}
}

func TestValidationError_DetailedError(t *testing.T) {
	err := NewValidationError("connections", "must be between 1 and 32")
	err.Value = 99
	err.WithContext("max_allowed", 32)

	result := err.DetailedError()
	if !strings.Contains(result, "Validation Error for field 'connections'") {
		t.Error("expected field name in detailed error")
	}
	if !strings.Contains(result, "Provided value: 99") {
		t.Error("expected provided value in detailed error")
	}
}

func TestCommonErrorConstructors(t *testing.T) {
	if err := NewInvalidURLError("ftp://x", "bad scheme"); err.Kind != ErrInvalidURL {
		t.Error("NewInvalidURLError should produce ErrInvalidURL")
	}
	if err := NewInvalidChecksumSpecError("bogus"); err.Kind != ErrInvalidChecksumSpec {
		t.Error("NewInvalidChecksumSpecError should produce ErrInvalidChecksumSpec")
	}
	if err := NewConfigKeyNotFoundError("nope"); err.Kind != ErrConfigKeyNotFound {
		t.Error("NewConfigKeyNotFoundError should produce ErrConfigKeyNotFound")
	}
	if err := NewUnsupportedOptionError("--extract"); err.Kind != ErrUnsupportedOption {
		t.Error("NewUnsupportedOptionError should produce ErrUnsupportedOption")
	}
	if err := NewResumeDataCorruptedError("/tmp/x", "bad json"); err.Kind != ErrResumeDataCorrupted {
		t.Error("NewResumeDataCorruptedError should produce ErrResumeDataCorrupted")
	}
	if err := NewResumeIncompatibleError("size mismatch"); err.Kind != ErrResumeIncompatible {
		t.Error("NewResumeIncompatibleError should produce ErrResumeIncompatible")
	}
	if err := NewPartialFileInvalidError("/tmp/x", "too large"); err.Kind != ErrPartialFileInvalid {
		t.Error("NewPartialFileInvalidError should produce ErrPartialFileInvalid")
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with_query", "https://example.com/download?token=secret123&file=test.zip", "https://example.com/download?[REDACTED]"},
		{"without_query", "https://example.com/download", "https://example.com/download"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
