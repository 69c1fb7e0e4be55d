package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(Validation("bad input")); got != KindValidation {
		t.Errorf("KindOf(validation) = %q, want %q", got, KindValidation)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindInternal)
	}
	wrapped := fmt.Errorf("handler: %w", Forbidden())
	if got := KindOf(wrapped); got != KindForbidden {
		t.Errorf("KindOf(wrapped forbidden) = %q, want %q", got, KindForbidden)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindInvalidCredentials, http.StatusUnauthorized},
		{KindTokenExpired, http.StatusUnauthorized},
		{KindTokenInvalid, http.StatusUnauthorized},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindAlreadyExists, http.StatusConflict},
		{KindValidation, http.StatusBadRequest},
		{KindDatabase, http.StatusInternalServerError},
		{KindExternalService, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.kind); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	cause := errors.New("connection refused to 10.0.0.5:5432")
	err := Database(cause)

	if got := PublicMessage(err); got != "Database error occurred" {
		t.Errorf("PublicMessage = %q, want %q", got, "Database error occurred")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should keep the cause for logs, got %q", err.Error())
	}
}

func TestPublicMessageCallerSupplied(t *testing.T) {
	err := Validation("Device limit reached (1/1). Upgrade to add more devices.")
	if got := PublicMessage(err); got != "Device limit reached (1/1). Upgrade to add more devices." {
		t.Errorf("PublicMessage = %q", got)
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("get endpoint: %w", Forbidden())
	if !errors.Is(err, Forbidden()) {
		t.Error("errors.Is should match forbidden by kind")
	}
	if errors.Is(err, Unauthorized()) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("no such table")
	err := Database(cause)
	if !errors.Is(err, cause) {
		t.Error("Database error should unwrap to its cause")
	}
}

func TestIsAuthError(t *testing.T) {
	for _, err := range []error{InvalidCredentials(), TokenExpired(), TokenInvalid(), Unauthorized()} {
		if !IsAuthError(err) {
			t.Errorf("IsAuthError(%v) = false, want true", err)
		}
	}
	if IsAuthError(Forbidden()) {
		t.Error("IsAuthError(forbidden) = true, want false")
	}
	if IsAuthError(nil) {
		t.Error("IsAuthError(nil) = true, want false")
	}
}
