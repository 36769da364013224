package scheduler

import (
	"time"

	"marstek-ble-bridge/pkg/protocol"
)

// Tier names a polling cadence bucket.
type Tier string

const (
	TierFast    Tier = "fast"
	TierInitial Tier = "initial"
	TierMedium  Tier = "medium"
	TierSlow    Tier = "slow"
)

// PollCommand is one read issued during a cycle. A zero Timeout uses the
// driver's default.
type PollCommand struct {
	Command protocol.Command
	Payload []byte
	Timeout time.Duration
}

// Plan lists the commands of each tier in issue order.
type Plan struct {
	// Initial runs once, after the fast tier of the first cycles, until it succeeds
	Initial []PollCommand
	Fast    []PollCommand
	Medium  []PollCommand
	Slow    []PollCommand
}

// DefaultPlan is the read set used for Marstek batteries.
func DefaultPlan() Plan {
	return Plan{
		Initial: []PollCommand{
			{Command: protocol.CmdDeviceInfo},
		},
		Fast: []PollCommand{
			{Command: protocol.CmdRuntimeInfo},
			{Command: protocol.CmdBMSData},
		},
		Medium: []PollCommand{
			{Command: protocol.CmdSystemData},
			{Command: protocol.CmdWiFiSSID},
			{Command: protocol.CmdConfigData},
			{Command: protocol.CmdCTPollingRate},
			{Command: protocol.CmdLocalAPIStatus},
			{Command: protocol.CmdMeterIP, Payload: protocol.MeterIPQuery},
			{Command: protocol.CmdNetworkInfo},
		},
		Slow: []PollCommand{
			{Command: protocol.CmdTimerInfo},
			{Command: protocol.CmdEventLog, Timeout: 20 * time.Second},
		},
	}
}

type step struct {
	tier Tier
	cmd  PollCommand
}

// steps flattens the tiers selected for one cycle. Fast always comes first.
func (p Plan) steps(initial, medium, slow bool) []step {
	var out []step
	add := func(t Tier, cmds []PollCommand) {
		for _, c := range cmds {
			out = append(out, step{tier: t, cmd: c})
		}
	}
	add(TierFast, p.Fast)
	if initial {
		add(TierInitial, p.Initial)
	}
	if medium {
		add(TierMedium, p.Medium)
	}
	if slow {
		add(TierSlow, p.Slow)
	}
	return out
}
