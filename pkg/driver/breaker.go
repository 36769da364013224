package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/recovery"
)

// BreakerTransport fails connects fast once the device has been unreachable
// several times in a row, so a dead battery does not keep the adapter busy.
type BreakerTransport struct {
	inner          Transport
	circuitBreaker *recovery.CircuitBreaker
	lastLogTime    time.Time
	mu             sync.Mutex
}

// NewBreakerTransport wraps inner with a circuit breaker.
func NewBreakerTransport(inner Transport, config recovery.CircuitBreakerConfig) *BreakerTransport {
	userHook := config.OnStateChange
	config.OnStateChange = func(from, to recovery.CircuitState) {
		logStateChange(from, to)
		if userHook != nil {
			userHook(from, to)
		}
	}

	logger.LogInfo("🔌 Circuit breaker initialized for BLE connects (MaxFailures: %d, Timeout: %s)",
		config.MaxFailures, config.Timeout)

	return &BreakerTransport{
		inner:          inner,
		circuitBreaker: recovery.NewCircuitBreaker(config),
		lastLogTime:    time.Now(),
	}
}

// Connect runs the inner connect through the breaker.
func (b *BreakerTransport) Connect(ctx context.Context, handle DeviceHandle, onDisconnect func(error)) (Session, error) {
	var sess Session
	err := b.circuitBreaker.Call(func() error {
		var callErr error
		sess, callErr = b.inner.Connect(ctx, handle, onDisconnect)
		return callErr
	})
	b.logStateIfStuck()
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Stats returns current circuit breaker statistics
func (b *BreakerTransport) Stats() recovery.CircuitBreakerStats {
	return b.circuitBreaker.GetStats()
}

// Reset manually closes the breaker
func (b *BreakerTransport) Reset() {
	logger.LogInfo("🔄 Manually resetting circuit breaker")
	b.circuitBreaker.Reset()
}

func logStateChange(from, to recovery.CircuitState) {
	switch to {
	case recovery.StateClosed:
		logger.LogInfo("🟢 Circuit breaker: %s -> CLOSED (device reachable)", from)
	case recovery.StateOpen:
		logger.LogWarn("🔴 Circuit breaker: %s -> OPEN (fast-failing connects)", from)
	case recovery.StateHalfOpen:
		logger.LogInfo("🟡 Circuit breaker: %s -> HALF-OPEN (probing device)", from)
	}
}

// logStateIfStuck repeats an OPEN warning at most once per minute
func (b *BreakerTransport) logStateIfStuck() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastLogTime) < time.Minute {
		return
	}
	if stats := b.circuitBreaker.GetStats(); stats.State == recovery.StateOpen {
		logger.LogWarn("🔴 Circuit breaker still OPEN (%s)", stats)
	}
	b.lastLogTime = time.Now()
}

func (b *BreakerTransport) String() string {
	return fmt.Sprintf("BreakerTransport{%s}", b.circuitBreaker.GetStats())
}
