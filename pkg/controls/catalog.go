// Package controls maps user-facing switches, buttons and selects onto
// device write commands.
package controls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/state"
)

// ErrUnknownControl is returned for keys not in the catalog.
var ErrUnknownControl = errors.New("unknown control")

// Kind of control.
type Kind string

const (
	KindSwitch Kind = "switch"
	KindButton Kind = "button"
	KindSelect Kind = "select"
)

// Option is one choice of a select.
type Option struct {
	Label   string
	Payload []byte
}

// Control is one actuator.
type Control struct {
	Key     string
	Name    string
	Kind    Kind
	Command protocol.Command
	// Payload is written when a button is pressed
	Payload []byte
	Options []Option
	// StateField, when set, reads a switch's position back from the device
	StateField *state.FieldID
}

// OptionLabels lists a select's choices in order.
func (c Control) OptionLabels() []string {
	out := make([]string, len(c.Options))
	for i, o := range c.Options {
		out[i] = o.Label
	}
	return out
}

func field(id state.FieldID) *state.FieldID { return &id }

// Defaults is the control set of Marstek batteries.
func Defaults() []Control {
	return []Control{
		{Key: "out1_control", Name: "Output 1 Control", Kind: KindSwitch, Command: protocol.CmdOutputControl, StateField: field(state.FieldOut1Active)},
		{Key: "eps_mode", Name: "EPS Mode", Kind: KindSwitch, Command: protocol.CmdEPSMode},
		{Key: "adaptive_mode", Name: "Adaptive Mode", Kind: KindSwitch, Command: protocol.CmdAdaptiveMode, StateField: field(state.FieldAdaptiveModeEnabled)},
		{Key: "ac_input", Name: "AC Input", Kind: KindSwitch, Command: protocol.CmdACInput},
		{Key: "generator", Name: "Generator", Kind: KindSwitch, Command: protocol.CmdGenerator},
		{Key: "buzzer", Name: "Buzzer", Kind: KindSwitch, Command: protocol.CmdBuzzer},

		{Key: "reboot", Name: "Reboot Device", Kind: KindButton, Command: protocol.CmdReboot},
		{Key: "set_800w_mode", Name: "Set 800W Mode", Kind: KindButton, Command: protocol.CmdPowerMode, Payload: protocol.WattsPayload(800)},
		{Key: "set_2500w_mode", Name: "Set 2500W Mode", Kind: KindButton, Command: protocol.CmdPowerMode, Payload: protocol.WattsPayload(2500)},
		{Key: "set_ac_power_2500w", Name: "Set AC Power 2500W", Kind: KindButton, Command: protocol.CmdACPower, Payload: protocol.WattsPayload(2500)},
		{Key: "set_total_power_2500w", Name: "Set Total Power 2500W", Kind: KindButton, Command: protocol.CmdTotalPower, Payload: protocol.WattsPayload(2500)},

		{Key: "charge_mode", Name: "Charge Mode", Kind: KindSelect, Command: protocol.CmdChargeMode, Options: []Option{
			{Label: "Load First", Payload: protocol.ChargeModeLoadFirst.Payload()},
			{Label: "PV2 Passthrough", Payload: protocol.ChargeModePV2Passthrough.Payload()},
			{Label: "Simultaneous Charge Discharge", Payload: protocol.ChargeModeSimultaneous.Payload()},
		}},
		{Key: "ct_polling_rate", Name: "CT Polling Rate", Kind: KindSelect, Command: protocol.CmdCTPollingRateWrite, Options: []Option{
			{Label: "Fastest (0)", Payload: []byte{byte(protocol.CTRateFastest)}},
			{Label: "Medium (1)", Payload: []byte{byte(protocol.CTRateMedium)}},
			{Label: "Slowest (2)", Payload: []byte{byte(protocol.CTRateSlowest)}},
		}},
	}
}

// Sender is the driver's command entry point.
type Sender interface {
	SendCommand(ctx context.Context, cmd protocol.Command, payload []byte) bool
}

// Catalog actuates controls and remembers assumed positions for controls
// the device does not report back.
type Catalog struct {
	sender   Sender
	device   string
	controls []Control
	byKey    map[string]int

	mu      sync.RWMutex
	assumed map[string]string
}

// NewCatalog creates a catalog over controls. A nil slice uses Defaults.
func NewCatalog(device string, sender Sender, controls []Control) *Catalog {
	if controls == nil {
		controls = Defaults()
	}
	c := &Catalog{
		sender:   sender,
		device:   device,
		controls: controls,
		byKey:    make(map[string]int, len(controls)),
		assumed:  make(map[string]string),
	}
	for i, ctl := range controls {
		c.byKey[ctl.Key] = i
	}
	return c
}

// All returns the controls in declaration order.
func (c *Catalog) All() []Control {
	return append([]Control(nil), c.controls...)
}

// Get looks up a control by key.
func (c *Catalog) Get(key string) (Control, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Control{}, false
	}
	return c.controls[i], true
}

// payload resolves the bytes to write for value.
// Switches take ON/OFF (also true/false, 1/0), buttons ignore value,
// selects take an option label.
func (ctl Control) payload(value string) ([]byte, string, error) {
	switch ctl.Kind {
	case KindSwitch:
		switch strings.ToUpper(strings.TrimSpace(value)) {
		case "ON", "TRUE", "1":
			return protocol.SwitchPayload(true), "ON", nil
		case "OFF", "FALSE", "0":
			return protocol.SwitchPayload(false), "OFF", nil
		}
		return nil, "", bridgeerrors.NewValidationError(ctl.Key, "ON or OFF", value)
	case KindButton:
		return ctl.Payload, "", nil
	case KindSelect:
		for _, o := range ctl.Options {
			if strings.EqualFold(o.Label, strings.TrimSpace(value)) {
				return o.Payload, o.Label, nil
			}
		}
		return nil, "", bridgeerrors.NewValidationError(ctl.Key, ctl.OptionLabels(), value)
	}
	return nil, "", fmt.Errorf("control %s: unsupported kind %q", ctl.Key, ctl.Kind)
}

// Actuate writes value to the control identified by key.
func (c *Catalog) Actuate(ctx context.Context, key, value string) error {
	ctl, ok := c.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownControl, key)
	}
	payload, position, err := ctl.payload(value)
	if err != nil {
		return err
	}
	if !c.sender.SendCommand(ctx, ctl.Command, payload) {
		return bridgeerrors.NewCommandError(c.device, ctl.Command.Name(), 0, fmt.Errorf("control %s not acknowledged", key))
	}
	if position != "" {
		c.mu.Lock()
		c.assumed[key] = position
		c.mu.Unlock()
	}
	return nil
}

// State returns the current position of a switch or select. Switches with a
// state field prefer the device's report over the assumed position.
func (c *Catalog) State(key string, snap state.Snapshot) (string, bool) {
	ctl, ok := c.Get(key)
	if !ok || ctl.Kind == KindButton {
		return "", false
	}
	if ctl.StateField != nil {
		if on, ok := snap.Bool(*ctl.StateField); ok {
			if on {
				return "ON", true
			}
			return "OFF", true
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.assumed[key]
	return v, ok
}

// Assumed reports whether a control's state is tracked locally only.
func (c Control) Assumed() bool {
	return c.Kind != KindButton && c.StateField == nil
}
