package protocol

// Frame layout: [StartByte][length][TypeByte][command][payload...][checksum]
// length counts every byte including the checksum.
const (
	StartByte = 0x73
	TypeByte  = 0x23

	// HeaderSize is start + length + type + command.
	HeaderSize = 4
	// MinFrameSize is a frame with an empty payload.
	MinFrameSize = HeaderSize + 1
)

// GATT identifiers of the vendor service.
const (
	ServiceUUID      = "0000ff00-0000-1000-8000-00805f9b34fb"
	WriteCharUUID    = "0000ff01-0000-1000-8000-00805f9b34fb"
	NotifyCharUUID   = "0000ff02-0000-1000-8000-00805f9b34fb"
	NamePrefixVenusE = "MST_ACCP_"
	NamePrefixV3     = "MST_VNSE3_"
)

// DefaultNamePrefixes lists the advertised name prefixes of supported hardware.
var DefaultNamePrefixes = []string{NamePrefixVenusE, NamePrefixV3}
