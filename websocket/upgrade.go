package websocket

import (
	"crypto/sha1" //nolint:gosec // SHA-1 required by RFC 6455 Section 1.3, not used for security
	"encoding/base64"
	"net/http"
	"strings"
)

// websocketGUID is the magic GUID from RFC 6455 Section 1.3, used when
// computing Sec-WebSocket-Accept.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// UpgradeOptions configures the HTTP-to-WebSocket upgrade. The
// handshake itself is out of this package's core (spec.md Section 1);
// Upgrade is the one external collaborator this package supplies, and
// all it produces is a *WebSocket wrapping the hijacked connection;
// every read/write policy from there on is the core's.
//
// All fields are optional; the zero value picks sensible defaults.
type UpgradeOptions struct {
	// Subprotocols is the server's supported subprotocol list. The
	// first subprotocol in the client's Sec-WebSocket-Protocol list that
	// also appears here is selected; the order of this list does not
	// affect the choice. Empty means no subprotocol negotiation.
	Subprotocols []string

	// CheckOrigin validates the Origin header. nil allows every origin,
	// which is only appropriate for non-browser clients or a server
	// that also sits behind an origin-checking proxy.
	CheckOrigin func(*http.Request) bool

	// MaxMessageSize and WritevThreshold seed the resulting WebSocket's
	// configuration; zero values fall back to AfterHandshake's defaults.
	// The other session settings keep AfterHandshake's defaults and are
	// changed through the WebSocket's setters.
	MaxMessageSize  uint64
	WritevThreshold int
}

// UpgradeResult carries the negotiated subprotocol alongside the
// session, since that information has no other home once the
// handshake is done.
type UpgradeResult struct {
	WebSocket   *WebSocket
	Subprotocol string
}

// Upgrade performs the RFC 6455 Section 4 server opening handshake
// against an *http.Request/http.ResponseWriter pair, hijacks the
// underlying connection, and returns a *WebSocket ready for
// WriteFrame/ReadFrame.
//
// Steps: verify method and headers, negotiate a subprotocol, compute
// Sec-WebSocket-Accept, write the 101 response, hijack, and wrap the
// raw net.Conn in AfterHandshake(conn, RoleServer).
func Upgrade(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*UpgradeResult, error) {
	if opts == nil {
		opts = &UpgradeOptions{}
	}

	if r.Method != http.MethodGet {
		return nil, ErrInvalidMethod
	}
	if !headerContainsToken(r.Header.Get("Upgrade"), "websocket") {
		return nil, ErrMissingUpgradeHeader
	}
	if !headerContainsToken(r.Header.Get("Connection"), "upgrade") {
		return nil, ErrMissingConnHeader
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return nil, ErrInvalidVersion
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingSecKey
	}
	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		return nil, ErrOriginDenied
	}

	subprotocol := negotiateSubprotocol(r, opts.Subprotocols)
	accept := computeAcceptKey(key)

	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", accept)
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, ErrHijackUnsupported
	}
	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, err
	}
	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	// Anything the client already sent past the 101 response (and
	// which bufrw.Reader buffered) must not be dropped; it becomes the
	// session's first spill.
	var spill []byte
	if n := bufrw.Reader.Buffered(); n > 0 {
		spill, _ = bufrw.Reader.Peek(n)
		spill = append([]byte(nil), spill...)
	}

	ws := AfterHandshake(netConn, RoleServer)
	if opts.MaxMessageSize > 0 {
		ws.SetMaxMessageSize(opts.MaxMessageSize)
	}
	if opts.WritevThreshold > 0 {
		ws.SetWritevThreshold(opts.WritevThreshold)
	}
	if len(spill) > 0 {
		ws.spill = spill
	}

	return &UpgradeResult{WebSocket: ws, Subprotocol: subprotocol}, nil
}

// ComputeAcceptKey computes Sec-WebSocket-Accept from a client-supplied
// Sec-WebSocket-Key: base64(SHA-1(key + websocketGUID)).
func ComputeAcceptKey(key string) string {
	return computeAcceptKey(key)
}

func computeAcceptKey(key string) string {
	h := sha1.New() //nolint:gosec // RFC 6455 mandates SHA-1 here
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// negotiateSubprotocol returns the first client-requested subprotocol
// that also appears in serverProtos, or "" if none match (or none were
// configured).
func negotiateSubprotocol(r *http.Request, serverProtos []string) string {
	if len(serverProtos) == 0 {
		return ""
	}
	clientProtos := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	for _, clientProto := range clientProtos {
		clientProto = strings.TrimSpace(clientProto)
		for _, serverProto := range serverProtos {
			if clientProto == serverProto {
				return clientProto
			}
		}
	}
	return ""
}

// headerContainsToken reports whether header, a comma-separated list,
// contains token (case-insensitive).
func headerContainsToken(header, token string) bool {
	header = strings.ToLower(header)
	token = strings.ToLower(token)
	for _, h := range strings.Split(header, ",") {
		if strings.TrimSpace(h) == token {
			return true
		}
	}
	return false
}

// CheckSameOrigin is a ready-made CheckOrigin function that accepts
// requests with no Origin header (non-browser clients) and otherwise
// requires Origin to match the request's own scheme and host.
func CheckSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return origin == scheme+"://"+r.Host
}
