package websocket

// FragmentCollector wraps a WebSocket and reassembles continuation
// frames into whole messages (spec.md Section 4.5). Fragment
// reassembly is deliberately kept out of the session codec itself:
// callers that want raw frames use WebSocket directly, and callers that
// want whole messages wrap it in a FragmentCollector.
type FragmentCollector struct {
	ws *WebSocket

	inProgress bool
	firstOp    OpCode
	buf        []byte

	maxMessageSize int
}

// NewFragmentCollector returns a FragmentCollector over ws. The
// assembler enforces the same message-size cap ws does.
func NewFragmentCollector(ws *WebSocket) *FragmentCollector {
	size := int(ws.maxMessageSize)
	if size <= 0 || uint64(size) != ws.maxMessageSize {
		size = defaultMaxMessageSize
	}
	return &FragmentCollector{ws: ws, maxMessageSize: size}
}

// WriteFrame delegates to the wrapped session unchanged; fragmentation
// policy only applies to reads.
func (fc *FragmentCollector) WriteFrame(f Frame) error {
	return fc.ws.WriteFrame(f)
}

// ReadFrame returns the next complete logical message, transparently
// pulling and concatenating continuation frames as needed. Control
// frames (already resolved by the wrapped session's own read-loop
// policy) pass straight through without touching assembler state.
func (fc *FragmentCollector) ReadFrame() (Frame, error) {
	for {
		frame, err := fc.ws.ReadFrame()
		if err != nil {
			return Frame{}, err
		}

		if IsControl(frame.Opcode) {
			return frame, nil
		}

		switch frame.Opcode {
		case OpText, OpBinary:
			if frame.Fin {
				if fc.inProgress {
					return Frame{}, ErrInvalidFragment
				}
				return frame, nil
			}
			if fc.inProgress {
				return Frame{}, ErrInvalidFragment
			}
			if err := fc.appendNew(frame); err != nil {
				return Frame{}, err
			}

		case OpContinuation:
			if !fc.inProgress {
				return Frame{}, ErrInvalidContinuationFrame
			}
			if err := fc.appendContinuation(frame); err != nil {
				return Frame{}, err
			}
			if frame.Fin {
				out := Frame{
					Fin:     true,
					Opcode:  fc.firstOp,
					Payload: OwnedPayload(fc.buf),
				}
				fc.reset()
				return out, nil
			}

		default:
			return frame, nil
		}
	}
}

func (fc *FragmentCollector) appendNew(frame Frame) error {
	payload := frame.Payload.Bytes()
	if len(payload) > fc.maxMessageSize {
		return ErrFrameTooLarge
	}
	fc.inProgress = true
	fc.firstOp = frame.Opcode
	fc.buf = append([]byte(nil), payload...)
	return nil
}

func (fc *FragmentCollector) appendContinuation(frame Frame) error {
	payload := frame.Payload.Bytes()
	if len(fc.buf)+len(payload) > fc.maxMessageSize {
		fc.reset()
		return ErrFrameTooLarge
	}
	fc.buf = append(fc.buf, payload...)
	return nil
}

func (fc *FragmentCollector) reset() {
	fc.inProgress = false
	fc.firstOp = 0
	fc.buf = nil
}
