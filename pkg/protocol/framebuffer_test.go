package protocol

import (
	"bytes"
	"testing"
)

func TestFrameBufferReassembly(t *testing.T) {
	frame := BuildFrame(CmdWiFiSSID, []byte("home-network"))
	var fb FrameBuffer

	if got := fb.Feed(frame[:5]); len(got) != 0 {
		t.Fatalf("Expected no frame from a partial chunk, got %d", len(got))
	}
	got := fb.Feed(frame[5:])
	if len(got) != 1 || !bytes.Equal(got[0], frame) {
		t.Fatalf("Expected reassembled frame, got %v", got)
	}
	if fb.Pending() != 0 {
		t.Errorf("Expected empty buffer, %d bytes pending", fb.Pending())
	}
}

func TestFrameBufferSkipsNoise(t *testing.T) {
	a := BuildFrame(CmdCTPollingRate, []byte{0x01})
	b := BuildFrame(CmdReboot, nil)
	var fb FrameBuffer

	stream := append([]byte{0x00, 0x11, 0x22}, a...)
	stream = append(stream, b...)
	got := fb.Feed(stream)
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Frames out of order or corrupted: % X / % X", got[0], got[1])
	}
	if fb.Dropped() != 3 {
		t.Errorf("Expected 3 dropped bytes, got %d", fb.Dropped())
	}
}

func TestFrameBufferZeroLength(t *testing.T) {
	var fb FrameBuffer
	frame := BuildFrame(CmdReboot, nil)
	got := fb.Feed(append([]byte{StartByte, 0x00}, frame...))
	if len(got) != 1 || !bytes.Equal(got[0], frame) {
		t.Errorf("Expected zero-length header to be skipped, got %v", got)
	}
}

func TestFrameBufferResyncsOnCorruptHeader(t *testing.T) {
	frame := BuildFrame(CmdReboot, nil)
	tests := []struct {
		name   string
		header []byte
	}{
		{"short length", []byte{StartByte, 0x03}},
		{"bad type byte", []byte{StartByte, 0xFF, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fb FrameBuffer
			stream := append(append([]byte{}, tt.header...), frame...)
			got := fb.Feed(stream)
			if len(got) != 1 || !bytes.Equal(got[0], frame) {
				t.Fatalf("Expected the valid frame after a corrupt header, got %v", got)
			}
			if fb.Pending() != 0 {
				t.Errorf("Expected empty buffer, %d bytes pending", fb.Pending())
			}
			if fb.Dropped() != len(tt.header) {
				t.Errorf("Expected %d dropped bytes, got %d", len(tt.header), fb.Dropped())
			}
		})
	}
}
