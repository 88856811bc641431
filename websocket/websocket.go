package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Role determines a session's masking duties (RFC 6455 Section 5.1).
type Role int

const (
	// RoleServer frames are never masked on write. Masked frames read by
	// a server are unmasked automatically when auto-masking is enabled;
	// unmasked incoming frames are accepted as well.
	RoleServer Role = iota
	// RoleClient frames are masked on write with a fresh random key when
	// auto-masking is enabled. Masked incoming frames are accepted and
	// returned with Mask set and the payload still masked.
	RoleClient
)

// Stream is the bidirectional byte stream WebSocket operates on. Any
// net.Conn satisfies it; so does anything else exposing blocking
// Read/Write. The handshake that produces this stream is out of this
// package's scope (spec.md Section 1); see Upgrade for one way to get
// one from an *http.Request.
type Stream interface {
	io.Reader
	io.Writer
}

// Default configuration values for AfterHandshake, matching the
// fastwebsockets crate this package's core is ported from.
const (
	defaultMaxMessageSize  = 64 << 20 // 64 MiB
	defaultWritevThreshold = 1024
	headScratchSize        = 4096 // >=14 required by spec; sized for the common small-frame case without allocating (teacher's defaultReadBufferSize is also 4096)
)

// WebSocket is a per-connection RFC 6455 frame codec.
//
// A WebSocket is NOT safe for concurrent use. It holds no internal
// locks by design (spec.md Section 5): it is meant to be confined to a
// single goroutine, with read and write calls strictly serialized by
// the caller. A goroutine that wants to interleave an application write
// with the read loop's internal pong/close echoes must serialize that
// itself, e.g. by routing writes through a channel the read loop also
// owns. Cancelling a read or write (e.g. via a context-aware Stream
// that errors on cancellation) leaves the session's internal scratch
// and spill state unusable; the only defined operation afterward is
// IntoInner.
type WebSocket struct {
	stream Stream
	role   Role

	// Configuration (spec.md Section 6). All mutable mid-session;
	// changes apply to subsequent operations only.
	vectored        bool
	autoClose       bool
	autoPong        bool
	autoApplyMask   bool
	maxMessageSize  uint64
	writevThreshold int

	closed bool

	// writeScratch is reused across single-buffer writes (cleared, not
	// reallocated) to avoid a header+payload allocation per frame.
	writeScratch []byte

	// head is the per-session header scratch (spec.md Section 5: "a
	// per-thread, reusable header scratch of at least 14 bytes"). A
	// per-session field is the realization spec.md's Design Notes call
	// out as equally correct to a process-wide static.
	head []byte
	// spill holds bytes read past the end of the previous frame that
	// belong to the next one; drained into head on the next ReadFrame.
	spill []byte

	inflate *inflator
}

// AfterHandshake wraps an already-upgraded stream in a WebSocket
// session. Defaults: Vectored=true, AutoClose=true, AutoPong=true,
// AutoApplyMask=true, MaxMessageSize=64MiB, WritevThreshold=1024.
func AfterHandshake(stream Stream, role Role) *WebSocket {
	return &WebSocket{
		stream:          stream,
		role:            role,
		vectored:        true,
		autoClose:       true,
		autoPong:        true,
		autoApplyMask:   true,
		maxMessageSize:  defaultMaxMessageSize,
		writevThreshold: defaultWritevThreshold,
		inflate:         newInflator(defaultMaxMessageSize * 4),
	}
}

// SetVectored enables or disables vectored writes for large payloads.
func (ws *WebSocket) SetVectored(v bool) { ws.vectored = v }

// SetWritevThreshold sets the payload-length threshold above which
// vectored writes are used.
func (ws *WebSocket) SetWritevThreshold(n int) { ws.writevThreshold = n }

// SetAutoClose enables or disables automatically echoing Close frames.
func (ws *WebSocket) SetAutoClose(v bool) { ws.autoClose = v }

// SetAutoPong enables or disables automatically answering Ping with
// Pong.
func (ws *WebSocket) SetAutoPong(v bool) { ws.autoPong = v }

// SetAutoApplyMask enables or disables automatic masking (write) and
// unmasking (read).
func (ws *WebSocket) SetAutoApplyMask(v bool) { ws.autoApplyMask = v }

// SetMaxMessageSize sets the payload-length cap. A frame whose length
// is greater than or equal to this value is rejected with
// ErrFrameTooLarge.
func (ws *WebSocket) SetMaxMessageSize(n uint64) { ws.maxMessageSize = n }

// IntoInner consumes the session and returns the underlying stream. The
// WebSocket must not be used afterward.
func (ws *WebSocket) IntoInner() Stream {
	return ws.stream
}

// WriteFrame writes a frame to the stream.
//
// If the session has already written a Close frame, WriteFrame fails
// with ErrConnectionClosed. Writing a Close frame marks the session
// closed. If the session's role is Client and auto-masking is enabled,
// the frame is masked (a fresh key is generated) before emission.
func (ws *WebSocket) WriteFrame(f Frame) error {
	if ws.closed {
		return ErrConnectionClosed
	}

	if ws.role == RoleClient && ws.autoApplyMask {
		if err := f.ApplyMask(); err != nil {
			return err
		}
	}

	if f.Opcode == OpClose {
		ws.closed = true
	}

	if ws.vectored && f.Payload.Len() > ws.writevThreshold {
		return f.writeVectored(ws.stream)
	}

	ws.writeScratch = ws.writeScratch[:0]
	ws.writeScratch = f.Encode(ws.writeScratch)
	_, err := ws.stream.Write(ws.writeScratch)
	return err
}

// ReadFrame reads and returns the next frame, running the internal
// control-frame policy loop (spec.md Section 4.4) first: Ping frames
// are answered with Pong and do not stop the loop; a Close frame is
// validated, echoed, and then returned to the caller, or, if it failed
// validation, the validation error is returned instead of the frame; a
// fin Text frame with invalid UTF-8 fails.
func (ws *WebSocket) ReadFrame() (Frame, error) {
	for {
		frame, err := ws.readOneFrame()
		if err != nil {
			return Frame{}, err
		}

		if ws.closed && frame.Opcode != OpClose {
			return Frame{}, ErrConnectionClosed
		}

		switch frame.Opcode {
		case OpClose:
			if !ws.autoClose || ws.closed {
				return frame, nil
			}
			body := frame.Payload.Bytes()
			var verr error
			switch {
			case len(body) == 1:
				verr = ErrInvalidCloseFrame
			case len(body) >= 2:
				code := CloseCode(binary.BigEndian.Uint16(body[:2]))
				if !utf8.Valid(body[2:]) {
					verr = ErrInvalidUTF8
				} else if !code.IsAllowed() {
					verr = ErrInvalidCloseCode
				}
			}
			// The echo happens regardless of validation outcome (RFC
			// 6455 Section 5.5.1's "echo the status code" guidance). An
			// invalid close code is echoed back as CloseProtocolError
			// rather than the offending code, but the received reason
			// text still rides along, per RFC 6455 Section 7.4.1.
			if verr == ErrInvalidCloseCode {
				reason := ""
				if len(body) > 2 {
					reason = string(body[2:])
				}
				_ = ws.WriteFrame(Close(CloseProtocolError, reason))
			} else {
				_ = ws.WriteFrame(CloseRaw(append([]byte(nil), body...)))
			}
			if verr != nil {
				return Frame{}, verr
			}
			return frame, nil

		case OpPing:
			if ws.autoPong {
				pong := Pong(append([]byte(nil), frame.Payload.Bytes()...))
				if err := ws.WriteFrame(pong); err != nil {
					return Frame{}, err
				}
				continue
			}
			return frame, nil

		case OpText:
			if frame.Fin && !utf8.Valid(frame.Payload.Bytes()) {
				return Frame{}, ErrInvalidUTF8
			}
			return frame, nil

		default:
			return frame, nil
		}
	}
}

// readOneFrame parses exactly one frame's header, acquires its payload
// (borrowed from the scratch or newly owned), and applies masking and
// deflate inflation. It does not run the control-frame policy loop;
// ReadFrame does that around it.
func (ws *WebSocket) readOneFrame() (Frame, error) {
	if ws.head == nil {
		ws.head = make([]byte, headScratchSize)
	}
	head := ws.head

	nread := 0
	if ws.spill != nil {
		nread = copy(head, ws.spill)
		ws.spill = nil
	}

	nread, err := ws.fill(head, nread, 2)
	if err != nil {
		return Frame{}, err
	}

	hdr, extraLen := decodeHeaderPrefix(head[0], head[1])

	if !isValidOpcode(hdr.opcode) {
		return Frame{}, fmt.Errorf("%w: 0x%X", ErrInvalidOpCode, byte(hdr.opcode))
	}

	compressed := false
	switch {
	case hdr.rsv1 && !hdr.rsv2 && !hdr.rsv3:
		compressed = true
	case hdr.rsv1 || hdr.rsv2 || hdr.rsv3:
		return Frame{}, ErrReservedBitsNotZero
	}

	if IsControl(hdr.opcode) && !hdr.fin {
		return Frame{}, ErrControlFrameFragmented
	}

	headerEnd := 2
	if extraLen > 0 {
		nread, err = ws.fill(head, nread, 2+extraLen)
		if err != nil {
			return Frame{}, err
		}
		hdr.length = decodeExtendedLength(head[2 : 2+extraLen])
		headerEnd = 2 + extraLen
	}

	var maskKey [4]byte
	if hdr.masked {
		nread, err = ws.fill(head, nread, headerEnd+4)
		if err != nil {
			return Frame{}, err
		}
		copy(maskKey[:], head[headerEnd:headerEnd+4])
		headerEnd += 4
	}

	if hdr.opcode == OpPing && hdr.length > maxControlPayload {
		return Frame{}, ErrPingFrameTooLarge
	}

	if hdr.length >= ws.maxMessageSize {
		return Frame{}, ErrFrameTooLarge
	}

	required := headerEnd + int(hdr.length)
	var payload Payload
	if required > len(head) {
		buf := make([]byte, required)
		copy(buf, head[:nread])
		if _, err := ws.fill(buf, nread, required); err != nil {
			return Frame{}, err
		}
		payload = OwnedPayload(buf[headerEnd:required])
	} else {
		nread, err = ws.fill(head, nread, required)
		if err != nil {
			return Frame{}, err
		}
		if nread > required {
			ws.spill = append([]byte(nil), head[required:nread]...)
		}
		raw := head[headerEnd:required]
		if len(raw) > ws.writevThreshold {
			payload = borrowedPayload(raw)
		} else {
			payload = OwnedPayload(append([]byte(nil), raw...))
		}
	}

	if hdr.masked && ws.role == RoleServer && ws.autoApplyMask {
		unmask(payload.Bytes(), maskKey)
	}

	frame := Frame{
		Fin:        hdr.fin,
		Opcode:     hdr.opcode,
		Payload:    payload,
		compressed: compressed,
	}
	if hdr.masked && !(ws.role == RoleServer && ws.autoApplyMask) {
		key := maskKey
		frame.Mask = &key
	}

	if compressed {
		inflated, err := ws.inflate.inflate(frame.Payload.Bytes())
		if err != nil {
			return Frame{}, err
		}
		frame.Payload = OwnedPayload(inflated)
	}

	return frame, nil
}

// fill reads from the stream into buf[nread:], looping until at least
// need bytes are available. Each call asks for everything buf has room
// for rather than exactly (need-nread): for the session's head scratch
// this means a single transport read can pull in more than one small
// frame's worth of bytes at once, which is what produces the spill
// readOneFrame stashes for the next call. A zero-length read maps to
// ErrUnexpectedEOF regardless of how far into the frame parsing has
// progressed (spec.md Section 6: "read returning 0 is EOF and maps to
// UnexpectedEOF").
func (ws *WebSocket) fill(buf []byte, nread, need int) (int, error) {
	for nread < need {
		n, err := ws.stream.Read(buf[nread:])
		if n > 0 {
			nread += n
		}
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return nread, ErrUnexpectedEOF
			}
			return nread, err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nread, err
		}
	}
	return nread, nil
}
