// Package driver owns the radio link to one device: connect on demand,
// single-flight command/reply correlation, retries, and inactivity teardown.
package driver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/events"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/state"
)

var (
	// ErrNoHandle is wrapped in a ConnectionError when the device has never been seen
	ErrNoHandle = errors.New("no device handle available")
	// ErrTimeout is returned by an attempt whose reply did not arrive in time
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrSessionLost is returned when the link dropped while a reply was awaited
	ErrSessionLost = errors.New("session lost")
)

// Config tunes the driver. Zero values take the defaults.
type Config struct {
	Name              string
	Retries           int
	CommandTimeout    time.Duration
	RetryBackoff      time.Duration
	InactivityTimeout time.Duration
	HistorySize       int
	// Reassemble joins frames split across notifications
	Reassemble bool
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Name:              "marstek",
		Retries:           3,
		CommandTimeout:    2 * time.Second,
		RetryBackoff:      500 * time.Millisecond,
		InactivityTimeout: 30 * time.Second,
		HistorySize:       25,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Retries <= 0 {
		c.Retries = def.Retries
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = def.InactivityTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}

// Options override the per-call retry policy.
type Options struct {
	Retries int
	Timeout time.Duration
}

// pendingSlot is the single outstanding correlation.
type pendingSlot struct {
	command protocol.Command
	done    chan []byte
	lost    chan struct{}
	once    sync.Once
}

func newPendingSlot(cmd protocol.Command) *pendingSlot {
	return &pendingSlot{command: cmd, done: make(chan []byte, 1), lost: make(chan struct{})}
}

func (s *pendingSlot) fulfill(payload []byte) {
	select {
	case s.done <- payload:
	default:
	}
}

func (s *pendingSlot) abandon() {
	s.once.Do(func() { close(s.lost) })
}

// Driver serializes all traffic to one device.
type Driver struct {
	cfg       Config
	transport Transport
	resolver  Resolver
	record    *state.Record
	sink      events.Sink
	now       func() time.Time

	connMu sync.Mutex    // guards connect/reconnect
	opSem  chan struct{} // single command in flight

	mu              sync.RWMutex
	session         Session
	sessionID       string
	expectedID      string
	connState       ConnectionState
	lastHandle      *DeviceHandle
	pending         *pendingSlot
	frames          protocol.FrameBuffer
	inactivity      *time.Timer
	inactivityGen   uint64
	updateListeners []func(protocol.Command)

	stats         *statsBook
	commands      *ring[CommandEntry]
	notifications *ring[NotificationEntry]
}

// New creates a driver. record may be nil, in which case a fresh one is used.
func New(cfg Config, transport Transport, resolver Resolver, record *state.Record, sink events.Sink) *Driver {
	cfg = cfg.withDefaults()
	if record == nil {
		record = state.NewRecord()
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Driver{
		cfg:           cfg,
		transport:     transport,
		resolver:      resolver,
		record:        record,
		sink:          sink,
		now:           time.Now,
		opSem:         make(chan struct{}, 1),
		stats:         newStatsBook(),
		commands:      newRing[CommandEntry](cfg.HistorySize),
		notifications: newRing[NotificationEntry](cfg.HistorySize),
	}
}

// Name returns the configured device name.
func (d *Driver) Name() string { return d.cfg.Name }

// Record returns the state record the driver decodes into.
func (d *Driver) Record() *state.Record { return d.record }

// Snapshot returns a read-only copy of the device state.
func (d *Driver) Snapshot() state.Snapshot { return d.record.Snapshot() }

// GetFieldMetadata reports which command last wrote the named field and how long ago.
func (d *Driver) GetFieldMetadata(field string) (state.Metadata, bool) {
	id, ok := state.FieldByName(field)
	if !ok {
		return state.Metadata{}, false
	}
	return d.record.GetFieldMetadata(id)
}

// OnUpdate registers fn to run after every notification that decoded into
// the state record. fn runs on the notification path and must not block.
func (d *Driver) OnUpdate(fn func(protocol.Command)) {
	d.mu.Lock()
	d.updateListeners = append(d.updateListeners, fn)
	d.mu.Unlock()
}

// State returns the connection state.
func (d *Driver) State() ConnectionState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connState
}

// IsConnected reports whether a session is live.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session != nil
}

// BestHandle resolves the device, falling back to the last handle that connected.
func (d *Driver) BestHandle(ctx context.Context) (DeviceHandle, bool) {
	if d.resolver != nil {
		if h, ok := d.resolver(ctx); ok && h.Address != "" {
			return h, true
		}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastHandle != nil {
		return *d.lastHandle, true
	}
	return DeviceHandle{}, false
}

func (d *Driver) emit(e events.Event) {
	e.Time = d.now()
	e.Device = d.cfg.Name
	d.sink.Emit(e)
}

// EnsureConnected opens a session unless one is already live.
func (d *Driver) EnsureConnected(ctx context.Context) error {
	if d.IsConnected() {
		return nil
	}

	d.connMu.Lock()
	defer d.connMu.Unlock()

	// Another caller may have connected while we waited for the lock
	if d.IsConnected() {
		return nil
	}

	handle, ok := d.BestHandle(ctx)
	if !ok {
		err := bridgeerrors.NewConnectionError("resolve", ErrNoHandle, d.cfg.Name, "")
		d.emit(events.Event{Type: events.ConnectFailed, Err: err})
		return err
	}

	d.setState(Connecting)
	d.emit(events.Event{Type: events.Connecting, Detail: handle.String()})
	start := d.now()

	id := uuid.NewString()
	sess, err := d.transport.Connect(ctx, handle, func(err error) { d.handleDisconnect(id, err) })
	if err != nil {
		d.setState(Disconnected)
		cerr := bridgeerrors.NewConnectionError("connect", err, d.cfg.Name, handle.Address)
		d.emit(events.Event{Type: events.ConnectFailed, Err: cerr, Detail: handle.String()})
		return cerr
	}

	// Register the session before notifications start so the first reply
	// cannot race the bookkeeping
	d.mu.Lock()
	d.session = sess
	d.sessionID = id
	d.connState = ConnectedIdle
	h := handle
	d.lastHandle = &h
	d.frames.Reset()
	d.mu.Unlock()

	sender := handle.Address
	if err := sess.EnableNotifications(func(b []byte) { d.HandleNotification(sender, b) }); err != nil {
		d.closeSession("notification subscription failed")
		cerr := bridgeerrors.NewConnectionError("subscribe", err, d.cfg.Name, handle.Address)
		d.emit(events.Event{Type: events.ConnectFailed, Err: cerr, Detail: handle.String()})
		return cerr
	}

	d.emit(events.Event{Type: events.Connected, Duration: d.now().Sub(start), Detail: handle.String()})
	return nil
}

func (d *Driver) setState(s ConnectionState) {
	d.mu.Lock()
	d.connState = s
	d.mu.Unlock()
}

// handleDisconnect is the transport's callback. Callbacks for sessions the
// driver already closed are expected and only reported as such.
func (d *Driver) handleDisconnect(id string, err error) {
	d.mu.Lock()
	if id == d.expectedID {
		d.expectedID = ""
		d.mu.Unlock()
		return
	}
	if id != d.sessionID {
		d.mu.Unlock()
		return
	}
	slot := d.pending
	d.session = nil
	d.sessionID = ""
	d.connState = Disconnected
	d.stopInactivityLocked()
	d.mu.Unlock()

	if slot != nil {
		slot.abandon()
	}
	d.emit(events.Event{Type: events.Disconnected, Expected: false, Err: err})
}

// closeSession tears the live session down and marks the resulting
// disconnect callback as expected.
func (d *Driver) closeSession(reason string) {
	d.mu.Lock()
	sess := d.session
	if sess == nil {
		d.connState = Disconnected
		d.mu.Unlock()
		return
	}
	d.expectedID = d.sessionID
	d.session = nil
	d.sessionID = ""
	d.connState = Disconnected
	d.stopInactivityLocked()
	d.frames.Reset()
	d.mu.Unlock()

	_ = sess.DisableNotifications()
	err := sess.Disconnect()
	d.emit(events.Event{Type: events.Disconnected, Expected: true, Detail: reason, Err: err})
}

// Disconnect closes the session if one is open.
func (d *Driver) Disconnect() {
	d.closeSession("requested")
}

// SendCommand sends cmd with the configured retry policy and reports
// whether a correlated reply arrived.
func (d *Driver) SendCommand(ctx context.Context, cmd protocol.Command, payload []byte) bool {
	return d.SendCommandWithOptions(ctx, cmd, payload, Options{})
}

// SendCommandWithOptions is SendCommand with a per-call retry policy.
func (d *Driver) SendCommandWithOptions(ctx context.Context, cmd protocol.Command, payload []byte, opts Options) bool {
	retries := opts.Retries
	if retries <= 0 {
		retries = d.cfg.Retries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.cfg.CommandTimeout
	}

	frame := protocol.BuildFrame(cmd, payload)
	entry := CommandEntry{
		Command: cmd.Hex(),
		Name:    cmd.Name(),
		Payload: hex.EncodeToString(payload),
		Frame:   hex.EncodeToString(frame),
	}

	select {
	case d.opSem <- struct{}{}:
	case <-ctx.Done():
		d.finishFailure(cmd, entry, 0, ctx.Err())
		return false
	}
	defer func() { <-d.opSem }()

	var lastErr error
	attempt := 0
	for attempt < retries {
		attempt++
		start := d.now()
		lastErr = d.attempt(ctx, cmd, frame, timeout, attempt)
		if lastErr == nil {
			at := d.now()
			d.stats.success(cmd, at)
			entry.Time = at
			entry.Attempts = attempt
			entry.Success = true
			d.commands.add(entry)
			d.emit(events.Event{Type: events.CommandSucceeded, Command: cmd.Name(), Attempt: attempt, Duration: at.Sub(start)})
			d.armInactivity()
			return true
		}

		d.emit(events.Event{Type: events.CommandAttemptFailed, Command: cmd.Name(), Attempt: attempt, Duration: d.now().Sub(start), Err: lastErr})
		d.closeSession(fmt.Sprintf("command %s attempt %d failed", cmd.Name(), attempt))

		if ctx.Err() != nil || attempt == retries {
			break
		}
		if !d.sleep(ctx, d.cfg.RetryBackoff) {
			break
		}
	}

	d.finishFailure(cmd, entry, attempt, lastErr)
	return false
}

func (d *Driver) finishFailure(cmd protocol.Command, entry CommandEntry, attempts int, err error) {
	at := d.now()
	d.stats.failure(cmd, at, err)
	entry.Time = at
	entry.Attempts = attempts
	if err != nil {
		entry.Error = err.Error()
	}
	d.commands.add(entry)
	d.emit(events.Event{
		Type:    events.CommandFailed,
		Command: cmd.Name(),
		Attempt: attempts,
		Err:     bridgeerrors.NewCommandError(d.cfg.Name, cmd.Name(), attempts, err),
	})
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// attempt runs one write/wait cycle. The caller holds opSem.
func (d *Driver) attempt(ctx context.Context, cmd protocol.Command, frame []byte, timeout time.Duration, n int) error {
	if err := d.EnsureConnected(ctx); err != nil {
		return err
	}

	slot := newPendingSlot(cmd)
	d.mu.Lock()
	sess := d.session
	if sess == nil {
		d.mu.Unlock()
		return ErrSessionLost
	}
	d.pending = slot
	d.connState = ConnectedBusy
	d.mu.Unlock()
	defer d.clearSlot(slot)

	d.stats.sent(cmd)
	d.emit(events.Event{Type: events.CommandSent, Command: cmd.Name(), Attempt: n, Detail: hex.EncodeToString(frame)})

	if err := sess.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	d.armInactivity()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-slot.done:
		return nil
	case <-slot.lost:
		return ErrSessionLost
	case <-timer.C:
		return fmt.Errorf("%w (%s after %s)", ErrTimeout, cmd.Name(), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) clearSlot(slot *pendingSlot) {
	d.mu.Lock()
	if d.pending == slot {
		d.pending = nil
	}
	if d.connState == ConnectedBusy {
		d.connState = ConnectedIdle
	}
	d.mu.Unlock()
}

// armInactivity (re)starts the idle timer for the live session.
func (d *Driver) armInactivity() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return
	}
	d.stopInactivityLocked()
	d.inactivityGen++
	gen := d.inactivityGen
	d.inactivity = time.AfterFunc(d.cfg.InactivityTimeout, func() { d.onInactivity(gen) })
}

// stopInactivityLocked must be called with mu held
func (d *Driver) stopInactivityLocked() {
	if d.inactivity != nil {
		d.inactivity.Stop()
		d.inactivity = nil
	}
	d.inactivityGen++
}

func (d *Driver) onInactivity(gen uint64) {
	d.mu.RLock()
	current := gen == d.inactivityGen
	d.mu.RUnlock()
	if !current {
		return
	}

	// A command in flight counts as activity
	select {
	case d.opSem <- struct{}{}:
	default:
		d.armInactivity()
		return
	}
	defer func() { <-d.opSem }()

	d.mu.RLock()
	current = gen == d.inactivityGen && d.session != nil
	d.mu.RUnlock()
	if !current {
		return
	}

	d.emit(events.Event{Type: events.InactivityDisconnect, Duration: d.cfg.InactivityTimeout})
	d.closeSession("inactivity")
}

// HandleNotification processes a raw buffer from the notify characteristic.
func (d *Driver) HandleNotification(sender string, raw []byte) {
	if !d.cfg.Reassemble {
		d.handleFrame(sender, raw)
		return
	}
	d.mu.Lock()
	frames := d.frames.Feed(raw)
	d.mu.Unlock()
	for _, f := range frames {
		d.handleFrame(sender, f)
	}
}

func (d *Driver) handleFrame(sender string, raw []byte) {
	ts := d.now()
	entry := NotificationEntry{Time: ts, Sender: sender, Frame: hex.EncodeToString(raw)}

	cmd, payload, err := protocol.ParseFrame(raw)
	if err != nil {
		entry.Error = err.Error()
		d.notifications.add(entry)
		d.stats.rejected()
		d.emit(events.Event{Type: events.FrameRejected, Detail: entry.Frame, Err: err})
		return
	}

	decoded := protocol.DecodePayload(cmd, payload, d.record, ts)
	entry.Command = cmd.Hex()
	entry.Payload = hex.EncodeToString(payload)
	entry.Parsed = true
	entry.Decoded = decoded
	d.notifications.add(entry)
	d.stats.notification(cmd, ts, payload)
	d.emit(events.Event{Type: events.NotificationReceived, Command: cmd.Name(), Parsed: decoded})

	d.mu.Lock()
	slot := d.pending
	if slot != nil && slot.command != cmd {
		slot = nil
	}
	listeners := d.updateListeners
	d.mu.Unlock()

	if slot != nil {
		slot.fulfill(payload)
	}
	if decoded {
		for _, fn := range listeners {
			fn(cmd)
		}
	}
}

// Diagnostics returns counters and history for the diagnostics surfaces.
func (d *Driver) Diagnostics() Diagnostics {
	diag := Diagnostics{Device: d.cfg.Name}
	d.stats.fill(&diag)

	d.mu.RLock()
	diag.State = d.connState.String()
	diag.Connected = d.session != nil
	diag.SessionID = d.sessionID
	if d.lastHandle != nil {
		h := *d.lastHandle
		diag.LastHandle = &h
	}
	d.mu.RUnlock()

	diag.CommandHistory = d.commands.list()
	diag.NotificationHistory = d.notifications.list()
	return diag
}
