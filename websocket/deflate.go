package websocket

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateTail is the four-byte RFC 7692 Section 7.2.2 sentinel appended
// to a compressed frame's payload before raw-DEFLATE inflation: the
// sender strips it on the way out, and the receiver must add it back so
// the flate reader sees a terminated stream.
var deflateTail = [4]byte{0x00, 0x00, 0xFF, 0xFF}

// deflateFinalBlock is an empty final stored block fed to the flate
// reader after deflateTail. A sync-flushed stream has no final block of
// its own, so without it the reader would report an unexpected EOF
// instead of a clean end of stream.
var deflateFinalBlock = [5]byte{0x01, 0x00, 0x00, 0xFF, 0xFF}

// inflator runs the per-frame RFC 7692 inflation pass for a single
// compressed frame. It holds no state across frames (no context
// takeover, per spec.md Section 4.6 and the Open Questions in Section
// 9): every call to inflate is an independent raw-DEFLATE stream.
type inflator struct {
	maxOutputSize int
}

// newInflator returns an inflator that refuses to grow its output buffer
// past maxOutputSize bytes, guarding against decompression bombs. A
// maxOutputSize of 0 means unlimited.
func newInflator(maxOutputSize int) *inflator {
	return &inflator{maxOutputSize: maxOutputSize}
}

// inflate decompresses a raw-DEFLATE payload (with the trailing sentinel
// re-appended) into a growable buffer sized at 2x the input length
// initially, per spec.md Section 4.6.
func (inf *inflator) inflate(payload []byte) ([]byte, error) {
	initial := len(payload) * 2
	if initial == 0 {
		initial = 256
	}
	if inf.maxOutputSize > 0 && initial > inf.maxOutputSize {
		initial = inf.maxOutputSize
	}

	src := io.MultiReader(bytes.NewReader(payload), bytes.NewReader(deflateTail[:]), bytes.NewReader(deflateFinalBlock[:]))
	fr := flate.NewReader(src)
	defer fr.Close()

	out := make([]byte, 0, initial)
	buf := make([]byte, 4096)
	for {
		n, err := fr.Read(buf)
		if n > 0 {
			if inf.maxOutputSize > 0 && len(out)+n > inf.maxOutputSize {
				return nil, ErrInvalidEncoding
			}
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, ErrInvalidEncoding
		}
	}
}
