package protocol

import (
	"encoding/binary"
	"fmt"
)

// SwitchPayload encodes an on/off write.
func SwitchPayload(on bool) []byte {
	if on {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// WattsPayload encodes a power setting as little-endian watts.
func WattsPayload(watts uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, watts)
	return b
}

// ChargeMode is the value written with CmdChargeMode.
type ChargeMode byte

const (
	ChargeModePV2Passthrough ChargeMode = 0x00
	ChargeModeLoadFirst      ChargeMode = 0x01
	ChargeModeSimultaneous   ChargeMode = 0x02
)

// Payload returns the one-byte write payload.
func (m ChargeMode) Payload() []byte { return []byte{byte(m)} }

// CTPollingRate is the value written with CmdCTPollingRateWrite.
type CTPollingRate byte

const (
	CTRateFastest CTPollingRate = 0x00
	CTRateMedium  CTPollingRate = 0x01
	CTRateSlowest CTPollingRate = 0x02
)

// Payload returns the one-byte write payload, rejecting unknown rates.
func (r CTPollingRate) Payload() ([]byte, error) {
	if r > CTRateSlowest {
		return nil, fmt.Errorf("ct polling rate %d out of range 0-2", r)
	}
	return []byte{byte(r)}, nil
}
