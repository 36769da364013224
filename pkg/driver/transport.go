package driver

import (
	"context"
	"fmt"
)

// DeviceHandle identifies a physical device as last seen by the radio.
// Addresses can change between sessions, so handles are re-resolved before
// every connect.
type DeviceHandle struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int16  `json:"rssi,omitempty"`
}

func (h DeviceHandle) String() string {
	if h.Name == "" {
		return h.Address
	}
	return fmt.Sprintf("%s (%s)", h.Name, h.Address)
}

// Resolver returns the best currently known handle for the device, or false
// if the device has not been seen.
type Resolver func(ctx context.Context) (DeviceHandle, bool)

// StaticResolver always yields the same address.
func StaticResolver(address string) Resolver {
	return func(context.Context) (DeviceHandle, bool) {
		if address == "" {
			return DeviceHandle{}, false
		}
		return DeviceHandle{Address: address}, true
	}
}

// Transport opens sessions to a device. onDisconnect is invoked when the link
// drops for any reason, including a Disconnect requested by the caller.
type Transport interface {
	Connect(ctx context.Context, handle DeviceHandle, onDisconnect func(error)) (Session, error)
}

// Session is one live link to the device.
type Session interface {
	// Write sends a raw frame to the command characteristic
	Write(frame []byte) error
	// EnableNotifications delivers raw notification buffers to fn
	EnableNotifications(fn func([]byte)) error
	DisableNotifications() error
	Disconnect() error
}

// ConnectionState of the driver's single session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	ConnectedIdle
	ConnectedBusy
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedIdle:
		return "connected_idle"
	case ConnectedBusy:
		return "connected_busy"
	default:
		return "unknown"
	}
}
