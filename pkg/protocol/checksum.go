package protocol

// Checksum returns the running XOR of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// VerifyChecksum checks that the last byte of frame is the XOR of all prior bytes.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	return Checksum(frame[:len(frame)-1]) == frame[len(frame)-1]
}

// AppendChecksum returns a copy of data with its XOR checksum appended.
func AppendChecksum(data []byte) []byte {
	out := make([]byte, len(data)+1)
	copy(out, data)
	out[len(data)] = Checksum(data)
	return out
}
