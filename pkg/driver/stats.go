package driver

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"marstek-ble-bridge/pkg/protocol"
)

// CommandStats are the counters kept per command id.
type CommandStats struct {
	Command             string    `json:"command"`
	Name                string    `json:"name"`
	Sent                int       `json:"sent"`
	Success             int       `json:"success"`
	Failure             int       `json:"failure"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastNotification    time.Time `json:"last_notification,omitempty"`
	LastNotificationHex string    `json:"last_notification_hex,omitempty"`
}

type statsBook struct {
	mu               sync.Mutex
	commands         map[protocol.Command]*CommandStats
	rejectedFrames   int
	lastCommandError string
}

func newStatsBook() *statsBook {
	return &statsBook{commands: make(map[protocol.Command]*CommandStats)}
}

// entry must be called with mu held
func (s *statsBook) entry(cmd protocol.Command) *CommandStats {
	st, ok := s.commands[cmd]
	if !ok {
		st = &CommandStats{Command: cmd.Hex(), Name: cmd.Name()}
		s.commands[cmd] = st
	}
	return st
}

func (s *statsBook) sent(cmd protocol.Command) {
	s.mu.Lock()
	s.entry(cmd).Sent++
	s.mu.Unlock()
}

func (s *statsBook) success(cmd protocol.Command, at time.Time) {
	s.mu.Lock()
	st := s.entry(cmd)
	st.Success++
	st.LastSuccess = at
	s.mu.Unlock()
}

func (s *statsBook) failure(cmd protocol.Command, at time.Time, err error) {
	s.mu.Lock()
	st := s.entry(cmd)
	st.Failure++
	st.LastFailure = at
	if err != nil {
		st.LastError = err.Error()
		s.lastCommandError = fmt.Sprintf("%s: %v", cmd.Name(), err)
	}
	s.mu.Unlock()
}

func (s *statsBook) notification(cmd protocol.Command, at time.Time, payload []byte) {
	s.mu.Lock()
	st := s.entry(cmd)
	st.LastNotification = at
	st.LastNotificationHex = hex.EncodeToString(payload)
	s.mu.Unlock()
}

func (s *statsBook) rejected() {
	s.mu.Lock()
	s.rejectedFrames++
	s.mu.Unlock()
}

// fill copies the counters into d.
func (s *statsBook) fill(d *Diagnostics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Commands = make(map[string]CommandStats, len(s.commands))
	for _, st := range s.commands {
		d.Commands[st.Command] = *st
		d.TotalSent += st.Sent
		d.TotalSuccess += st.Success
		d.TotalFailure += st.Failure
	}
	d.RejectedFrames = s.rejectedFrames
	d.LastCommandError = s.lastCommandError

	if done := d.TotalSuccess + d.TotalFailure; done > 0 {
		d.SuccessRate = float64(d.TotalSuccess) / float64(done) * 100
	}
	d.Ratio = fmt.Sprintf("%d/%d", d.TotalSuccess, d.TotalSuccess+d.TotalFailure)
}

// Diagnostics is a read-only view of the driver for the diagnostics surfaces.
type Diagnostics struct {
	Device              string                  `json:"device"`
	State               string                  `json:"connection_state"`
	Connected           bool                    `json:"connected"`
	SessionID           string                  `json:"session_id,omitempty"`
	LastHandle          *DeviceHandle           `json:"last_handle,omitempty"`
	TotalSent           int                     `json:"total_sent"`
	TotalSuccess        int                     `json:"total_success"`
	TotalFailure        int                     `json:"total_failure"`
	SuccessRate         float64                 `json:"success_rate"`
	Ratio               string                  `json:"ratio"`
	LastCommandError    string                  `json:"last_command_error,omitempty"`
	RejectedFrames      int                     `json:"rejected_frames"`
	Commands            map[string]CommandStats `json:"commands"`
	CommandHistory      []CommandEntry          `json:"command_history"`
	NotificationHistory []NotificationEntry     `json:"notification_history"`
}
