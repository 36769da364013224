package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildRebootFrame(t *testing.T) {
	frame := BuildFrame(CmdReboot, nil)
	want := []byte{0x73, 0x05, 0x23, 0x25, 0x73 ^ 0x05 ^ 0x23 ^ 0x25}
	if !bytes.Equal(frame, want) {
		t.Errorf("Expected % X, got % X", want, frame)
	}
}

func TestBuildFrameLength(t *testing.T) {
	frame := BuildFrame(CmdPowerMode, WattsPayload(800))
	want := []byte{0x73, 0x07, 0x23, 0x15, 0x20, 0x03}
	want = append(want, Checksum(want))
	if !bytes.Equal(frame, want) {
		t.Errorf("Expected % X, got % X", want, frame)
	}
}

func TestParseFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		{0x0B},
		bytes.Repeat([]byte{0xFF}, 64),
		bytes.Repeat([]byte{0x73, 0x23}, 100),
	}
	for _, p := range payloads {
		cmd, payload, err := ParseFrame(BuildFrame(CmdBMSData, p))
		if err != nil {
			t.Fatalf("ParseFrame failed for %d-byte payload: %v", len(p), err)
		}
		if cmd != CmdBMSData {
			t.Errorf("Expected command %s, got %s", CmdBMSData, cmd)
		}
		if !bytes.Equal(payload, p) && !(len(payload) == 0 && len(p) == 0) {
			t.Errorf("Payload mismatch: % X vs % X", payload, p)
		}
	}
}

func TestParseFrameErrors(t *testing.T) {
	valid := BuildFrame(CmdRuntimeInfo, []byte{1, 2, 3})

	badHeader := append([]byte(nil), valid...)
	badHeader[2] = 0x24

	badLen := BuildFrame(CmdRuntimeInfo, []byte{1, 2, 3})
	badLen[1] = 0x10
	badLen[len(badLen)-1] = Checksum(badLen[:len(badLen)-1])

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", nil, ErrFrameTooShort},
		{"four bytes", []byte{0x73, 0x04, 0x23, 0x03}, ErrFrameTooShort},
		{"wrong start", append([]byte{0x74}, valid[1:]...), ErrBadHeader},
		{"wrong type", badHeader, ErrBadHeader},
		{"bad checksum", append(append([]byte(nil), valid[:len(valid)-1]...), valid[len(valid)-1]^0xFF), ErrBadChecksum},
		{"length mismatch", badLen, ErrLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseFrame(tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Errorf("Expected *FrameError, got %T", err)
			}
		})
	}
}

func TestChecksumSensitivity(t *testing.T) {
	frame := BuildFrame(CmdBMSData, []byte{0x10, 0x20, 0x30, 0x40})
	for i := 0; i < len(frame)-1; i++ {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), frame...)
			mutated[i] ^= 1 << bit
			_, _, err := ParseFrame(mutated)
			if err == nil {
				t.Fatalf("Expected error after flipping byte %d bit %d", i, bit)
			}
			if i == 0 || i == 2 {
				if !errors.Is(err, ErrBadHeader) {
					t.Errorf("Byte %d bit %d: expected header error, got %v", i, bit, err)
				}
				continue
			}
			if !errors.Is(err, ErrBadChecksum) {
				t.Errorf("Byte %d bit %d: expected checksum error, got %v", i, bit, err)
			}
		}
	}
}

func TestFrameErrorKind(t *testing.T) {
	_, _, err := ParseFrame([]byte{0x73})
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FrameError, got %T", err)
	}
	if fe.Kind() != "too_short" {
		t.Errorf("Expected kind too_short, got %s", fe.Kind())
	}
}

func TestCommandNames(t *testing.T) {
	if CmdBMSData.String() != "bms_data" {
		t.Errorf("Expected bms_data, got %s", CmdBMSData)
	}
	if Command(0x99).String() != "0x99" {
		t.Errorf("Expected 0x99 for unknown command, got %s", Command(0x99))
	}
	if c, ok := CommandByName("reboot"); !ok || c != CmdReboot {
		t.Errorf("Expected reboot to resolve to 0x25, got %v %v", c, ok)
	}
}
