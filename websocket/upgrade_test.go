package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComputeAcceptKey(t *testing.T) {
	// RFC 6455 Section 1.3's worked example.
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("ComputeAcceptKey = %q, want %q", got, want)
	}
}

func TestUpgrade_RejectsNonGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/ws", nil)
	w := httptest.NewRecorder()
	_, err := Upgrade(w, r, nil)
	if err != ErrInvalidMethod {
		t.Errorf("Upgrade = %v, want ErrInvalidMethod", err)
	}
}

func TestUpgrade_RejectsMissingUpgradeHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	w := httptest.NewRecorder()
	_, err := Upgrade(w, r, nil)
	if err != ErrMissingUpgradeHeader {
		t.Errorf("Upgrade = %v, want ErrMissingUpgradeHeader", err)
	}
}

func TestUpgrade_RejectsMissingConnectionHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	w := httptest.NewRecorder()
	_, err := Upgrade(w, r, nil)
	if err != ErrMissingConnHeader {
		t.Errorf("Upgrade = %v, want ErrMissingConnHeader", err)
	}
}

func TestUpgrade_RejectsBadVersion(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Version", "8")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	w := httptest.NewRecorder()
	_, err := Upgrade(w, r, nil)
	if err != ErrInvalidVersion {
		t.Errorf("Upgrade = %v, want ErrInvalidVersion", err)
	}
}

func TestUpgrade_RejectsMissingKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Version", "13")
	w := httptest.NewRecorder()
	_, err := Upgrade(w, r, nil)
	if err != ErrMissingSecKey {
		t.Errorf("Upgrade = %v, want ErrMissingSecKey", err)
	}
}

func TestUpgrade_OriginCheck(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	opts := &UpgradeOptions{
		CheckOrigin: func(*http.Request) bool { return false },
	}
	_, err := Upgrade(w, r, opts)
	if err != ErrOriginDenied {
		t.Errorf("Upgrade = %v, want ErrOriginDenied", err)
	}
}

func TestUpgrade_RejectsUnhijackableResponseWriter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	w := httptest.NewRecorder() // does not implement http.Hijacker

	_, err := Upgrade(w, r, nil)
	if err != ErrHijackUnsupported {
		t.Errorf("Upgrade = %v, want ErrHijackUnsupported", err)
	}
}

func TestNegotiateSubprotocol(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "chat, superchat")

	got := negotiateSubprotocol(r, []string{"superchat", "chat"})
	if got != "chat" {
		t.Errorf("negotiateSubprotocol = %q, want %q (first client-requested match)", got, "chat")
	}

	none := negotiateSubprotocol(r, []string{"unrelated"})
	if none != "" {
		t.Errorf("negotiateSubprotocol with no overlap = %q, want empty", none)
	}

	empty := negotiateSubprotocol(r, nil)
	if empty != "" {
		t.Errorf("negotiateSubprotocol with no server protocols = %q, want empty", empty)
	}
}

func TestHeaderContainsToken(t *testing.T) {
	tests := []struct {
		header, token string
		want          bool
	}{
		{"websocket", "websocket", true},
		{"Upgrade, HTTP/2.0", "upgrade", true},
		{"keep-alive", "upgrade", false},
		{"", "upgrade", false},
	}
	for _, tt := range tests {
		if got := headerContainsToken(tt.header, tt.token); got != tt.want {
			t.Errorf("headerContainsToken(%q, %q) = %v, want %v", tt.header, tt.token, got, tt.want)
		}
	}
}

func TestCheckSameOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	r.Host = "example.com"

	if !CheckSameOrigin(r) {
		t.Error("no Origin header should be allowed (non-browser client)")
	}

	r.Header.Set("Origin", "http://example.com")
	if !CheckSameOrigin(r) {
		t.Error("matching Origin should be allowed")
	}

	r.Header.Set("Origin", "http://evil.example")
	if CheckSameOrigin(r) {
		t.Error("mismatched Origin should be rejected")
	}
}
