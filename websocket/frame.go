package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
)

// MaxFrameHeaderSize is the largest a frame header can be: 2 fixed bytes
// + 8 extended-length bytes + 4 mask-key bytes.
const MaxFrameHeaderSize = 14

// maxControlPayload is RFC 6455 Section 5.5's 125-byte cap on control
// frame payloads.
const maxControlPayload = 125

// Frame header bit layout (RFC 6455 Section 5.2), byte 0.
const (
	finBit     = 1 << 7
	rsv1Bit    = 1 << 6
	rsv2Bit    = 1 << 5
	rsv3Bit    = 1 << 4
	opcodeMask = 0x0F
)

// Frame header bit layout, byte 1.
const (
	maskBit    = 1 << 7
	lengthMask = 0x7F

	lengthCode16 = 126
	lengthCode64 = 127
)

// Frame is one WebSocket protocol unit (spec.md Section 3).
//
// Control frames (Close, Ping, Pong) have Fin true; ReadFrame rejects
// Ping payloads over 125 bytes but does not check the length of Close or
// Pong payloads. A Continuation frame's Opcode is OpContinuation. If
// Mask is non-nil, Payload is currently masked with that key: ReadFrame
// sets it only when it left the payload masked, and WriteFrame sends
// such a payload as it is, without masking it again.
type Frame struct {
	Fin     bool
	Opcode  OpCode
	Mask    *[4]byte
	Payload Payload

	// compressed marks that RSV1 was set and Payload has already been
	// run through the deflate inflator. On the write side it sets RSV1
	// in the encoded header; WriteFrame does not compress the payload.
	compressed bool
}

// Text constructs an owned, unmasked Text frame with Fin set.
func Text(data []byte) Frame {
	return Frame{Fin: true, Opcode: OpText, Payload: OwnedPayload(data)}
}

// Binary constructs an owned, unmasked Binary frame with Fin set.
func Binary(data []byte) Frame {
	return Frame{Fin: true, Opcode: OpBinary, Payload: OwnedPayload(data)}
}

// CloseRaw constructs a Close frame whose payload is exactly body (a
// 2-byte big-endian status code optionally followed by a UTF-8 reason).
// Use Close to build body from a CloseCode and reason string.
func CloseRaw(body []byte) Frame {
	return Frame{Fin: true, Opcode: OpClose, Payload: OwnedPayload(body)}
}

// Close constructs a Close frame carrying code and an optional reason.
func Close(code CloseCode, reason string) Frame {
	body := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(body, uint16(code))
	copy(body[2:], reason)
	return CloseRaw(body)
}

// Ping constructs a Ping frame. body must be at most 125 bytes.
func Ping(body []byte) Frame {
	return Frame{Fin: true, Opcode: OpPing, Payload: OwnedPayload(body)}
}

// Pong constructs a Pong frame. body must be at most 125 bytes.
func Pong(body []byte) Frame {
	return Frame{Fin: true, Opcode: OpPong, Payload: OwnedPayload(body)}
}

// ApplyMask generates a cryptographically unpredictable 32-bit key,
// stores it on the frame, and masks the payload in place. It is a no-op
// if the frame already carries a mask key.
func (f *Frame) ApplyMask() error {
	if f.Mask != nil {
		return nil
	}
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return err
	}
	f.Mask = &key
	unmask(f.Payload.Bytes(), key)
	return nil
}

// RemoveMask unmasks the payload in place using the stored key and
// clears it. It is a no-op if the frame carries no mask key.
func (f *Frame) RemoveMask() {
	if f.Mask == nil {
		return
	}
	unmask(f.Payload.Bytes(), *f.Mask)
	f.Mask = nil
}

// headerLen returns the number of header bytes Encode will emit for the
// frame's current payload length and mask presence.
func (f *Frame) headerLen() int {
	n := 2
	switch {
	case f.Payload.Len() > 0xFFFF:
		n += 8
	case f.Payload.Len() > maxControlPayload:
		n += 2
	}
	if f.Mask != nil {
		n += 4
	}
	return n
}

// encodeHeader appends the frame's header bytes (byte 0/1, extended
// length, mask key) to dst and returns the result.
func (f *Frame) encodeHeader(dst []byte) []byte {
	var b0 byte
	if f.Fin {
		b0 |= finBit
	}
	if f.compressed {
		b0 |= rsv1Bit
	}
	b0 |= byte(f.Opcode) & opcodeMask

	var b1 byte
	if f.Mask != nil {
		b1 |= maskBit
	}

	length := uint64(f.Payload.Len())
	switch {
	case length <= maxControlPayload:
		b1 |= byte(length)
		dst = append(dst, b0, b1)
	case length <= 0xFFFF:
		b1 |= lengthCode16
		dst = append(dst, b0, b1)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(length))
		dst = append(dst, ext[:]...)
	default:
		b1 |= lengthCode64
		dst = append(dst, b0, b1)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], length)
		dst = append(dst, ext[:]...)
	}

	if f.Mask != nil {
		dst = append(dst, f.Mask[:]...)
	}
	return dst
}

// Encode appends the frame's wire bytes (header and payload) to dst and
// returns the result. This is the single-contiguous-buffer emission
// strategy; WriteFrame chooses between this and a vectored write based
// on the session's writev threshold.
func (f *Frame) Encode(dst []byte) []byte {
	dst = f.encodeHeader(dst)
	return append(dst, f.Payload.Bytes()...)
}

// writeVectored writes the frame as two buffers, header and payload,
// via net.Buffers, which the Go runtime lowers to writev(2) when w is a
// connection from the net package such as *net.TCPConn; other writers
// get one Write call per buffer. Used when the
// session has vectored writes enabled and the payload is larger than
// writev_threshold (spec.md Section 4.1).
func (f *Frame) writeVectored(w io.Writer) error {
	header := f.encodeHeader(make([]byte, 0, MaxFrameHeaderSize))
	buffers := net.Buffers{header, f.Payload.Bytes()}
	_, err := buffers.WriteTo(w)
	return err
}

// frameHeader is the result of decoding a frame's leading bytes, before
// the payload itself (and, if masked, the mask key) has been read off
// the stream. WebSocket.ReadFrame uses it to figure out how many more
// bytes it needs.
type frameHeader struct {
	fin              bool
	rsv1, rsv2, rsv3 bool
	opcode           OpCode
	masked           bool
	length           uint64
}

// decodeHeaderPrefix decodes the fixed first two bytes of a frame
// header. extraLen is how many more bytes are needed to resolve the
// actual payload length: 0 if the 7-bit length field already holds it,
// 2 for the 16-bit extended form, 8 for the 64-bit form.
func decodeHeaderPrefix(b0, b1 byte) (hdr frameHeader, extraLen int) {
	hdr.fin = b0&finBit != 0
	hdr.rsv1 = b0&rsv1Bit != 0
	hdr.rsv2 = b0&rsv2Bit != 0
	hdr.rsv3 = b0&rsv3Bit != 0
	hdr.opcode = OpCode(b0 & opcodeMask)
	hdr.masked = b1&maskBit != 0

	lengthCode := b1 & lengthMask
	switch lengthCode {
	case lengthCode16:
		extraLen = 2
	case lengthCode64:
		extraLen = 8
	default:
		hdr.length = uint64(lengthCode)
	}
	return hdr, extraLen
}

// decodeExtendedLength decodes a 2- or 8-byte big-endian extended
// payload length, per len(buf).
func decodeExtendedLength(buf []byte) uint64 {
	switch len(buf) {
	case 2:
		return uint64(binary.BigEndian.Uint16(buf))
	case 8:
		return binary.BigEndian.Uint64(buf)
	default:
		panic("websocket: decodeExtendedLength requires a 2 or 8 byte buffer")
	}
}
