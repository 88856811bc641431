package websocket

// payloadKind tags which of the three shapes a Payload currently holds.
//
// Go has no borrow checker, so BorrowedView/BorrowedMut collapse to a
// single "borrowed" tag backed by a plain slice; the invariant that a
// borrowed Payload is only valid until the session's next ReadFrame call
// is documented rather than statically enforced (see Payload's doc
// comment and spec.md's Design Notes on managed-memory implementations).
type payloadKind byte

const (
	payloadBorrowed payloadKind = iota
	payloadOwned
)

// Payload holds a WebSocket frame's application data.
//
// A Payload returned by WebSocket.ReadFrame may be borrowed from the
// session's internal receive scratch: it is valid only until the next
// call to ReadFrame on that session. Call Payload.Clone (or Owned) to
// retain the bytes across reads. Payloads built by the Frame
// constructors (Text, Binary, Close, Ping, Pong) are always owned.
type Payload struct {
	kind payloadKind
	data []byte
}

// OwnedPayload wraps data as an owned Payload. The package assumes
// ownership of data; callers must not mutate it afterward unless they
// also hold the only reference.
func OwnedPayload(data []byte) Payload {
	return Payload{kind: payloadOwned, data: data}
}

// borrowedPayload wraps a slice of the session's scratch buffer. It is
// only safe to read until the scratch is reused by the next frame.
func borrowedPayload(data []byte) Payload {
	return Payload{kind: payloadBorrowed, data: data}
}

// Bytes returns the payload's bytes. For a borrowed Payload this slice
// aliases the owning session's scratch buffer and must not be retained
// past the next ReadFrame call.
func (p Payload) Bytes() []byte {
	return p.data
}

// Len returns the number of payload bytes.
func (p Payload) Len() int {
	return len(p.data)
}

// IsOwned reports whether the payload already owns its backing array.
func (p Payload) IsOwned() bool {
	return p.kind == payloadOwned
}

// Clone returns an owned copy of p. If p is already owned, Clone still
// copies: callers that want to avoid the copy should check IsOwned
// first and use Owned instead.
func (p Payload) Clone() Payload {
	cp := make([]byte, len(p.data))
	copy(cp, p.data)
	return Payload{kind: payloadOwned, data: cp}
}

// Owned returns an owned Payload holding p's bytes, copying only if p is
// currently borrowed. Use this to retain a frame's payload across a
// session's next ReadFrame call without an unconditional copy.
func (p Payload) Owned() Payload {
	if p.kind == payloadOwned {
		return p
	}
	return p.Clone()
}
