package protocol

import (
	"errors"
	"fmt"
)

// Frame-level errors. They are always recoverable: the frame is dropped.
var (
	ErrFrameTooShort  = errors.New("frame too short")
	ErrBadHeader      = errors.New("bad frame header")
	ErrBadChecksum    = errors.New("bad checksum")
	ErrLengthMismatch = errors.New("length byte does not match frame size")
)

// FrameError wraps a frame-level sentinel with the offending bytes.
type FrameError struct {
	Err error
	Raw []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v (%d bytes: %x)", e.Err, len(e.Raw), e.Raw)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Kind returns a short label for metrics.
func (e *FrameError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrFrameTooShort):
		return "too_short"
	case errors.Is(e.Err, ErrBadHeader):
		return "bad_header"
	case errors.Is(e.Err, ErrBadChecksum):
		return "bad_checksum"
	case errors.Is(e.Err, ErrLengthMismatch):
		return "length_mismatch"
	default:
		return "unknown"
	}
}

func frameError(err error, raw []byte) *FrameError {
	return &FrameError{Err: err, Raw: append([]byte(nil), raw...)}
}
