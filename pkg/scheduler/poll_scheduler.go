// Package scheduler drives the driver on a fast/medium/slow cadence and runs
// a watchdog that forces a poll when data goes stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"marstek-ble-bridge/pkg/driver"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/events"
	"marstek-ble-bridge/pkg/protocol"
)

const (
	MinFastInterval = 5 * time.Second
	MaxFastInterval = 60 * time.Second
)

// ErrCycleFailed is wrapped by CycleError.
var ErrCycleFailed = errors.New("poll cycle failed")

// Commander is the part of the driver the scheduler needs.
type Commander interface {
	SendCommandWithOptions(ctx context.Context, cmd protocol.Command, payload []byte, opts driver.Options) bool
	BestHandle(ctx context.Context) (driver.DeviceHandle, bool)
}

// Trigger says why a cycle ran.
type Trigger int

const (
	// TriggerTimer is the periodic fast-interval tick
	TriggerTimer Trigger = iota
	// TriggerEvent is an authoritative external trigger; failures are returned
	TriggerEvent
	// TriggerWatchdog is a self-heal cycle
	TriggerWatchdog
)

func (t Trigger) String() string {
	switch t {
	case TriggerTimer:
		return "timer"
	case TriggerEvent:
		return "event"
	case TriggerWatchdog:
		return "watchdog"
	default:
		return "unknown"
	}
}

// State of the poll state machine.
type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Config for the scheduler. FastInterval is the source of truth; the other
// tiers are derived from it.
type Config struct {
	Name                   string
	FastInterval           time.Duration
	MediumTarget           time.Duration
	SlowTarget             time.Duration
	Pacing                 time.Duration
	MinStaleThreshold      time.Duration
	MinWatchdogInterval    time.Duration
	StrideCommand          protocol.Command
	StrideEvery            int
	StrideJitter           time.Duration
	MaxConsecutiveFailures int
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		Name:                   "marstek",
		FastInterval:           10 * time.Second,
		MediumTarget:           60 * time.Second,
		SlowTarget:             300 * time.Second,
		Pacing:                 300 * time.Millisecond,
		MinStaleThreshold:      60 * time.Second,
		MinWatchdogInterval:    30 * time.Second,
		StrideCommand:          protocol.CmdRuntimeInfo,
		StrideEvery:            1,
		StrideJitter:           0,
		MaxConsecutiveFailures: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	c.FastInterval = ClampInterval(c.FastInterval)
	if c.MediumTarget <= 0 {
		c.MediumTarget = def.MediumTarget
	}
	if c.SlowTarget <= 0 {
		c.SlowTarget = def.SlowTarget
	}
	if c.Pacing < 0 {
		c.Pacing = 0
	}
	if c.MinStaleThreshold <= 0 {
		c.MinStaleThreshold = def.MinStaleThreshold
	}
	if c.MinWatchdogInterval <= 0 {
		c.MinWatchdogInterval = def.MinWatchdogInterval
	}
	if c.StrideEvery < 1 {
		c.StrideEvery = 1
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	return c
}

// ClampInterval bounds a fast interval to the supported range. Zero means the default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultConfig().FastInterval
	case d < MinFastInterval:
		return MinFastInterval
	case d > MaxFastInterval:
		return MaxFastInterval
	default:
		return d
	}
}

// CyclesFor returns ceil(target / fast), at least 1.
func CyclesFor(target, fast time.Duration) int {
	if fast <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(target) / float64(fast)))
	if n < 1 {
		n = 1
	}
	return n
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Trigger  string        `json:"trigger"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Tiers    []string      `json:"tiers"`
	Sent     int           `json:"sent"`
	Failed   []string      `json:"failed,omitempty"`
	Aborted  bool          `json:"aborted"`
	Success  bool          `json:"success"`
}

// CycleError is returned from event-triggered cycles that failed.
type CycleError struct {
	Trigger Trigger
	Failed  []string
	Aborted bool
	Err     error
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("%s poll cycle failed: %s", e.Trigger, strings.Join(e.Failed, ", "))
	if e.Aborted {
		msg += " (aborted)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CycleError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCycleFailed, e.Err}
	}
	return []error{ErrCycleFailed}
}

// Scheduler runs poll cycles for one device.
type Scheduler struct {
	name string
	cmd  Commander
	plan Plan
	sink events.Sink
	now  func() time.Time
	rng  *rand.Rand

	pollMu sync.Mutex // one cycle at a time

	mu                  sync.RWMutex
	cfg                 Config
	mediumEvery         int
	slowEvery           int
	staleThreshold      time.Duration
	watchdogInterval    time.Duration
	counter             int
	initialDone         bool
	state               State
	lastSuccess         time.Time
	lastForced          time.Time
	consecutiveFailures int
	totalCycles         int
	failedCycles        int
	forcedCycles        int
	lastCycle           *CycleResult
	listeners           []func(CycleResult)

	running    bool
	runCtx     context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	wakeup     chan struct{}
	wdTimer    *time.Timer
	wdDisabled bool
	wdRuns     sync.WaitGroup // watchdog callbacks in progress
}

// New creates a scheduler.
func New(cfg Config, cmd Commander, plan Plan, sink events.Sink) *Scheduler {
	return NewWithClock(cfg, cmd, plan, sink, time.Now)
}

// NewWithClock is New with an injected clock.
func NewWithClock(cfg Config, cmd Commander, plan Plan, sink events.Sink, now func() time.Time) *Scheduler {
	if sink == nil {
		sink = events.Discard
	}
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	s := &Scheduler{
		name:   cfg.Name,
		cmd:    cmd,
		plan:   plan,
		sink:   sink,
		now:    now,
		rng:    rand.New(rand.NewPCG(uint64(now().UnixNano()), 0x6d617273)),
		wakeup: make(chan struct{}, 1),
	}
	s.applyConfig(cfg)
	return s
}

// applyConfig must be called with mu held or before the scheduler is shared
func (s *Scheduler) applyConfig(cfg Config) {
	s.cfg = cfg
	s.mediumEvery = CyclesFor(cfg.MediumTarget, cfg.FastInterval)
	s.slowEvery = CyclesFor(cfg.SlowTarget, cfg.FastInterval)
	s.staleThreshold = maxDuration(2*cfg.FastInterval, cfg.MinStaleThreshold)
	s.watchdogInterval = maxDuration(cfg.FastInterval, cfg.MinWatchdogInterval)
	s.counter = 0
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func (s *Scheduler) emit(e events.Event) {
	e.Time = s.now()
	e.Device = s.name
	s.sink.Emit(e)
}

// OnCycle registers fn to run after every cycle. fn runs while the poll lock
// is held and must not start another cycle.
func (s *Scheduler) OnCycle(fn func(CycleResult)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetPollInterval changes the fast interval, resets the tier counters and
// recomputes the thresholds. It returns the interval actually applied.
func (s *Scheduler) SetPollInterval(d time.Duration) time.Duration {
	s.mu.Lock()
	cfg := s.cfg
	old := cfg.FastInterval
	cfg.FastInterval = ClampInterval(d)
	s.applyConfig(cfg)
	applied := s.cfg.FastInterval
	running := s.running
	s.mu.Unlock()

	s.emit(events.Event{Type: events.IntervalChanged, Duration: applied, Detail: fmt.Sprintf("%s -> %s", old, applied)})

	if running {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
		s.armWatchdog()
	}
	return applied
}

// PollInterval returns the current fast interval.
func (s *Scheduler) PollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.FastInterval
}

// PollNow runs an event-triggered cycle and reports its failure to the caller.
func (s *Scheduler) PollNow(ctx context.Context) error {
	return s.PollCycle(ctx, TriggerEvent)
}

// PollCycle runs one cycle. Only TriggerEvent cycles return an error.
func (s *Scheduler) PollCycle(ctx context.Context, trigger Trigger) error {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	return s.runCycleLocked(ctx, trigger)
}

// runCycleLocked must be called with pollMu held
func (s *Scheduler) runCycleLocked(ctx context.Context, trigger Trigger) error {
	s.mu.Lock()
	n := s.counter
	s.counter++
	runMedium := n%s.mediumEvery == 0
	runSlow := n%s.slowEvery == 0
	runInitial := !s.initialDone && len(s.plan.Initial) > 0
	strideSkip := s.cfg.StrideEvery > 1 && n%s.cfg.StrideEvery != 0
	cfg := s.cfg
	s.state = Polling
	s.mu.Unlock()

	steps := s.plan.steps(runInitial, runMedium, runSlow)
	tiers := []string{string(TierFast)}
	if runInitial {
		tiers = append(tiers, string(TierInitial))
	}
	if runMedium {
		tiers = append(tiers, string(TierMedium))
	}
	if runSlow {
		tiers = append(tiers, string(TierSlow))
	}

	result := CycleResult{Trigger: trigger.String(), Started: s.now(), Tiers: tiers}
	s.emit(events.Event{Type: events.PollStarted, Trigger: trigger.String(), Tiers: tiers})

	var cause error
	consecutive := 0
	initialSent, initialFailed := false, false
	issued := 0
	for _, st := range steps {
		if st.tier == TierFast && st.cmd.Command == cfg.StrideCommand && strideSkip {
			continue
		}
		delay := time.Duration(0)
		if issued > 0 {
			delay = cfg.Pacing
		}
		if st.tier == TierFast && st.cmd.Command == cfg.StrideCommand && cfg.StrideJitter > 0 {
			delay += time.Duration(s.rng.Int64N(int64(cfg.StrideJitter)))
		}
		if !sleepCtx(ctx, delay) {
			cause = ctx.Err()
			result.Aborted = true
			break
		}

		issued++
		if st.tier == TierInitial {
			initialSent = true
		}
		ok := s.cmd.SendCommandWithOptions(ctx, st.cmd.Command, st.cmd.Payload, driver.Options{Timeout: st.cmd.Timeout})
		if ok {
			consecutive = 0
			continue
		}

		result.Failed = append(result.Failed, st.cmd.Command.Name())
		if st.tier == TierInitial {
			initialFailed = true
		}
		consecutive++
		if consecutive >= cfg.MaxConsecutiveFailures {
			result.Aborted = true
			break
		}
	}
	result.Sent = issued

	result.Duration = s.now().Sub(result.Started)
	result.Success = len(result.Failed) == 0 && !result.Aborted

	s.mu.Lock()
	s.state = Idle
	s.totalCycles++
	if trigger == TriggerWatchdog {
		s.forcedCycles++
	}
	if initialSent && !initialFailed {
		s.initialDone = true
	}
	if result.Success {
		s.lastSuccess = s.now()
		s.consecutiveFailures = 0
	} else {
		s.failedCycles++
		s.consecutiveFailures++
	}
	r := result
	s.lastCycle = &r
	listeners := s.listeners
	s.mu.Unlock()

	if result.Success {
		s.emit(events.Event{Type: events.PollCompleted, Trigger: trigger.String(), Tiers: tiers, Duration: result.Duration})
	} else {
		s.emit(events.Event{
			Type:     events.PollFailed,
			Trigger:  trigger.String(),
			Tiers:    tiers,
			Duration: result.Duration,
			Detail:   strings.Join(result.Failed, ","),
			Err:      cause,
		})
	}

	for _, fn := range listeners {
		fn(result)
	}

	s.armWatchdog()

	if !result.Success && trigger == TriggerEvent {
		return &CycleError{Trigger: trigger, Failed: result.Failed, Aborted: result.Aborted, Err: cause}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsStale reports whether no cycle has succeeded within the stale threshold.
func (s *Scheduler) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleLocked(s.now())
}

// staleLocked must be called with mu held
func (s *Scheduler) staleLocked(now time.Time) bool {
	return s.lastSuccess.IsZero() || now.Sub(s.lastSuccess) > s.staleThreshold
}

// needsHealLocked allows one forced cycle per stale window. Must be called with mu held
func (s *Scheduler) needsHealLocked(now time.Time) bool {
	if !s.staleLocked(now) {
		return false
	}
	return s.lastForced.IsZero() || now.Sub(s.lastForced) > s.staleThreshold
}

// StaleError describes the current staleness, or nil if data is fresh.
func (s *Scheduler) StaleError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	if !s.staleLocked(now) {
		return nil
	}
	since := time.Duration(-1)
	if !s.lastSuccess.IsZero() {
		since = now.Sub(s.lastSuccess)
	}
	return bridgeerrors.NewStaleDataError(s.name, since, s.staleThreshold)
}

// CheckWatchdog runs a forced cycle if data is stale and reports whether it did.
func (s *Scheduler) CheckWatchdog(ctx context.Context) bool {
	s.mu.RLock()
	heal := s.needsHealLocked(s.now())
	s.mu.RUnlock()
	if !heal {
		return false
	}

	if _, ok := s.cmd.BestHandle(ctx); !ok {
		s.emit(events.Event{Type: events.WatchdogSkipped, Detail: "no device handle"})
		return false
	}

	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	// A cycle may have completed while we waited for the lock
	s.mu.Lock()
	now := s.now()
	if !s.needsHealLocked(now) {
		s.mu.Unlock()
		return false
	}
	s.lastForced = now
	s.mu.Unlock()

	s.emit(events.Event{Type: events.WatchdogFired, Trigger: TriggerWatchdog.String(), Err: s.StaleError()})
	_ = s.runCycleLocked(ctx, TriggerWatchdog)
	return true
}

// armWatchdog (re)starts the watchdog timer while the scheduler runs
func (s *Scheduler) armWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.wdDisabled {
		return
	}
	if s.wdTimer != nil {
		s.wdTimer.Stop()
	}
	ctx := s.runCtx
	s.wdTimer = time.AfterFunc(s.watchdogInterval, func() { s.watchdogTick(ctx) })
}

// watchdogTick runs one watchdog firing. It registers with wdRuns under mu so
// Stop can wait for a forced cycle that is already under way.
func (s *Scheduler) watchdogTick(ctx context.Context) {
	s.mu.Lock()
	if s.wdDisabled || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wdRuns.Add(1)
	s.mu.Unlock()
	defer s.wdRuns.Done()

	if !s.CheckWatchdog(ctx) {
		s.armWatchdog()
	}
}

// Start launches the periodic loop and the watchdog. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true
	s.wdDisabled = false
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.armWatchdog()
	go s.loop(runCtx, done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		_ = s.PollCycle(ctx, TriggerTimer)

		timer := time.NewTimer(s.PollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wakeup:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Stop cancels the loop and the watchdog. It returns once the loop and any
// forced cycle started by the watchdog have finished.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.wdDisabled = true
	if s.wdTimer != nil {
		s.wdTimer.Stop()
		s.wdTimer = nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.wdRuns.Wait()
}

// Status is the scheduler's diagnostics view.
type Status struct {
	Device              string       `json:"device"`
	State               string       `json:"state"`
	Running             bool         `json:"running"`
	FastInterval        float64      `json:"fast_interval_s"`
	MediumEvery         int          `json:"medium_every_cycles"`
	SlowEvery           int          `json:"slow_every_cycles"`
	Counter             int          `json:"cycle_counter"`
	LastSuccess         *time.Time   `json:"last_success,omitempty"`
	SecondsSinceSuccess float64      `json:"seconds_since_success"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	StaleThreshold      float64      `json:"stale_threshold_s"`
	WatchdogInterval    float64      `json:"watchdog_interval_s"`
	Stale               bool         `json:"stale"`
	TotalCycles         int          `json:"total_cycles"`
	FailedCycles        int          `json:"failed_cycles"`
	ForcedCycles        int          `json:"forced_cycles"`
	LastCycle           *CycleResult `json:"last_cycle,omitempty"`
}

// Status returns a copy of the scheduler's counters.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	st := Status{
		Device:              s.name,
		State:               s.state.String(),
		Running:             s.running,
		FastInterval:        s.cfg.FastInterval.Seconds(),
		MediumEvery:         s.mediumEvery,
		SlowEvery:           s.slowEvery,
		Counter:             s.counter,
		SecondsSinceSuccess: -1,
		ConsecutiveFailures: s.consecutiveFailures,
		StaleThreshold:      s.staleThreshold.Seconds(),
		WatchdogInterval:    s.watchdogInterval.Seconds(),
		Stale:               s.staleLocked(now),
		TotalCycles:         s.totalCycles,
		FailedCycles:        s.failedCycles,
		ForcedCycles:        s.forcedCycles,
	}
	if !s.lastSuccess.IsZero() {
		ls := s.lastSuccess
		st.LastSuccess = &ls
		st.SecondsSinceSuccess = now.Sub(ls).Seconds()
	}
	if s.lastCycle != nil {
		lc := *s.lastCycle
		st.LastCycle = &lc
	}
	return st
}
