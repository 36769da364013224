package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/topics"
)

// commandTimeout bounds one actuation including driver retries
const commandTimeout = 30 * time.Second

// CommandRouter dispatches messages on command topics to controls and to the
// poll interval setter
type CommandRouter struct {
	base      string
	deviceID  string
	actuator  Actuator
	interval  IntervalSetter
	onApplied func(key string)
	errors    *bridgeerrors.ErrorHandler
}

// NewCommandRouter creates a router for one device
func NewCommandRouter(base, deviceID string, actuator Actuator, interval IntervalSetter) *CommandRouter {
	return &CommandRouter{
		base:     base,
		deviceID: deviceID,
		actuator: actuator,
		interval: interval,
	}
}

// OnApplied registers a callback run after a command was accepted
func (r *CommandRouter) OnApplied(fn func(key string)) {
	r.onApplied = fn
}

// SetErrorHandler routes command failures through the central handler
func (r *CommandRouter) SetErrorHandler(h *bridgeerrors.ErrorHandler) {
	r.errors = h
}

// Handle applies one command message
func (r *CommandRouter) Handle(ctx context.Context, topic string, payload []byte) error {
	key, ok := topics.ParseCommandTopic(r.base, r.deviceID, topic)
	if !ok {
		return fmt.Errorf("not a command topic: %s", topic)
	}
	value := strings.TrimSpace(string(payload))
	logger.LogInfo("🎛️  Command %s = %q", key, value)

	if key == topics.PollIntervalKey {
		if r.interval == nil {
			return fmt.Errorf("poll interval is not adjustable")
		}
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || secs <= 0 {
			return bridgeerrors.NewValidationError(topics.PollIntervalKey, "positive number of seconds", value)
		}
		applied := r.interval.SetPollInterval(time.Duration(secs * float64(time.Second)))
		logger.LogInfo("⏱️  Poll interval set to %v", applied)
	} else {
		if r.actuator == nil {
			return fmt.Errorf("no controls configured")
		}
		if err := r.actuator.Actuate(ctx, key, value); err != nil {
			return err
		}
	}

	if r.onApplied != nil {
		r.onApplied(key)
	}
	return nil
}

// MessageHandler adapts Handle to a paho callback. Each message runs on its
// own goroutine.
func (r *CommandRouter) MessageHandler() paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		topic := msg.Topic()
		payload := append([]byte(nil), msg.Payload()...)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			if err := r.Handle(ctx, topic, payload); err != nil {
				if r.errors != nil {
					r.errors.Handle(ctx, err)
				} else {
					logger.LogError("❌ Command on %s failed: %v", topic, err)
				}
			}
		}()
	}
}
