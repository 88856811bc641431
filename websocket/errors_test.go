package websocket

import (
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrInvalidUTF8) {
		t.Error("ErrInvalidUTF8 should be fatal")
	}
	if !IsFatal(fmt.Errorf("wrapped: %w", ErrFrameTooLarge)) {
		t.Error("a wrapped fatal sentinel should still be reported fatal")
	}
	if IsFatal(nil) {
		t.Error("IsFatal(nil) should be false")
	}
	if IsFatal(ErrInvalidMethod) {
		t.Error("handshake errors are not part of the session's fatal set")
	}
}

func TestIsCloseError(t *testing.T) {
	if !IsCloseError(ErrConnectionClosed) {
		t.Error("ErrConnectionClosed should be reported as a close error")
	}
	if IsCloseError(ErrInvalidUTF8) {
		t.Error("ErrInvalidUTF8 is not a close error")
	}
}
