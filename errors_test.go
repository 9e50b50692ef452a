package authemu

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessageFormat(t *testing.T) {
	if got := badRequest(CodeEmailExists).Error(); got != "EMAIL_EXISTS" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.").Error(); got != "INVALID_PHONE_NUMBER : Invalid format." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("while signing in: %w", badRequest(CodeUserDisabled))
	if !IsCode(wrapped, CodeUserDisabled) || CodeOf(wrapped) != CodeUserDisabled {
		t.Fatal("expected wrapped code to be visible")
	}
	if KindOf(wrapped) != KindBadRequest {
		t.Fatalf("expected bad request kind, got %v", KindOf(wrapped))
	}

	plain := errors.New("disk on fire")
	ae := AsError(plain)
	if ae.Kind != KindInternal || ae.Code != CodeInternal || !errors.Is(ae, plain) {
		t.Fatalf("expected plain errors to become internal, got %+v", ae)
	}
	if AsError(nil) != nil || CodeOf(nil) != "" || KindOf(nil) != 0 || IsCode(nil, CodeUserDisabled) {
		t.Fatal("expected nil helpers to report nothing")
	}
}

func TestErrorKindHTTPStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindBadRequest:     http.StatusBadRequest,
		KindNotImplemented: http.StatusNotImplemented,
		KindInternal:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
