package protocol

// BuildFrame encodes a request. Any payload length is accepted; the length
// byte wraps for frames longer than 255 bytes.
func BuildFrame(cmd Command, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+MinFrameSize)
	frame = append(frame, StartByte, 0, TypeByte, byte(cmd))
	frame = append(frame, payload...)
	frame[1] = byte(len(frame) + 1)
	return append(frame, Checksum(frame))
}

// ParseFrame validates a frame and returns its command and payload.
// The returned payload aliases b.
func ParseFrame(b []byte) (Command, []byte, error) {
	if len(b) < MinFrameSize {
		return 0, nil, frameError(ErrFrameTooShort, b)
	}
	if b[0] != StartByte || b[2] != TypeByte {
		return 0, nil, frameError(ErrBadHeader, b)
	}
	if !VerifyChecksum(b) {
		return 0, nil, frameError(ErrBadChecksum, b)
	}
	if len(b) <= 0xFF && int(b[1]) != len(b) {
		return 0, nil, frameError(ErrLengthMismatch, b)
	}
	return Command(b[3]), b[HeaderSize : len(b)-1], nil
}
