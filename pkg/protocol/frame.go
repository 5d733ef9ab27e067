package protocol

import (
	"bufio"
	"errors"
	"io"
)

// FrameType identifies the type of frame.
type FrameType uint8

const (
	FrameCommands FrameType = 0x01 // Page → host command batch
	FrameEvent    FrameType = 0x02 // Host → page element event
	FrameError    FrameType = 0x03 // Page → host error report
	FramePing     FrameType = 0x04 // Keepalive
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameCommands:
		return "Commands"
	case FrameEvent:
		return "Event"
	case FrameError:
		return "Error"
	case FramePing:
		return "Ping"
	default:
		return "Unknown"
	}
}

// Valid reports whether ft is a known frame type.
func (ft FrameType) Valid() bool {
	return ft >= FrameCommands && ft <= FramePing
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
)

// Frame is a typed payload.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// NewFrame creates a frame.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode returns the frame with its header.
func (f *Frame) Encode() []byte {
	e := &Encoder{buf: make([]byte, 0, len(f.Payload)+6)}
	e.WriteByte(byte(f.Type))
	e.WriteUvarint(uint64(len(f.Payload)))
	e.buf = append(e.buf, f.Payload...)
	return e.buf
}

// DecodeFrame decodes one complete frame. Trailing bytes are an error.
func DecodeFrame(data []byte) (*Frame, error) {
	d := NewDecoder(data)
	b, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ft := FrameType(b)
	if !ft.Valid() {
		return nil, ErrInvalidFrameType
	}
	n, err := d.readLen()
	if err != nil {
		if errors.Is(err, ErrAllocationTooLarge) {
			return nil, ErrFrameTooLarge
		}
		return nil, err
	}
	if d.Remaining() != n {
		return nil, io.ErrUnexpectedEOF
	}
	payload := make([]byte, n)
	copy(payload, data[d.pos:])
	return &Frame{Type: ft, Payload: payload}, nil
}

// ReadFrame reads one frame from a stream.
func ReadFrame(r io.ByteReader) (*Frame, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ft := FrameType(b)
	if !ft.Valid() {
		return nil, ErrInvalidFrameType
	}

	var length uint64
	var shift uint
	for {
		c, err := r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		length |= uint64(c&0x7F) << shift
		if c < 0x80 {
			break
		}
		shift += 7
		if shift >= 64 {
			return nil, ErrVarintOverflow
		}
	}
	if length > MaxAllocation {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	for i := range payload {
		if payload[i], err = r.ReadByte(); err != nil {
			return nil, unexpected(err)
		}
	}
	return &Frame{Type: ft, Payload: payload}, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxAllocation {
		return ErrFrameTooLarge
	}
	_, err := w.Write(f.Encode())
	return err
}

// NewReader wraps r for ReadFrame.
func NewReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return bufio.NewReader(r)
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
