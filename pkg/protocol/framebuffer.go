package protocol

// FrameBuffer reassembles frames split across notifications.
// Bytes before a start byte are discarded. It is not safe for concurrent use.
type FrameBuffer struct {
	buf     []byte
	dropped int
}

// Feed appends chunk and returns every complete frame now available.
// Emitted frames are not validated; pass them to ParseFrame.
func (fb *FrameBuffer) Feed(chunk []byte) [][]byte {
	fb.buf = append(fb.buf, chunk...)
	var frames [][]byte
	for len(fb.buf) >= 2 {
		if fb.buf[0] != StartByte {
			fb.drop(1)
			continue
		}
		// a length below the smallest frame or a wrong type byte means this
		// start byte is payload noise; resync on the next one
		n := int(fb.buf[1])
		if n < MinFrameSize || (len(fb.buf) >= 3 && fb.buf[2] != TypeByte) {
			fb.drop(1)
			continue
		}
		if len(fb.buf) < n {
			break
		}
		frame := make([]byte, n)
		copy(frame, fb.buf[:n])
		fb.buf = fb.buf[n:]
		frames = append(frames, frame)
	}
	return frames
}

func (fb *FrameBuffer) drop(n int) {
	fb.buf = fb.buf[n:]
	fb.dropped += n
}

// Pending returns the number of buffered bytes awaiting completion.
func (fb *FrameBuffer) Pending() int { return len(fb.buf) }

// Dropped returns the number of noise bytes discarded so far.
func (fb *FrameBuffer) Dropped() int { return fb.dropped }

// Reset discards buffered bytes, e.g. after a reconnect.
func (fb *FrameBuffer) Reset() { fb.buf = nil }
