// Package ble connects to Marstek batteries over Bluetooth LE using
// tinygo.org/x/bluetooth.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/protocol"
)

var (
	// ErrNotSeen is returned when a handle was never observed in a scan
	ErrNotSeen = errors.New("device not seen in scan")
	// ErrLinkLost is passed to disconnect callbacks when the peer drops the link
	ErrLinkLost = errors.New("BLE link lost")
)

// Config selects the device and bounds radio operations.
type Config struct {
	// Address pins a MAC address; empty means pick by name prefix
	Address        string
	NamePrefixes   []string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	// SightingMaxAge drops stale advertisements from resolution
	SightingMaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.NamePrefixes) == 0 {
		c.NamePrefixes = protocol.DefaultNamePrefixes
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.SightingMaxAge <= 0 {
		c.SightingMaxAge = 10 * time.Minute
	}
	return c
}

var (
	serviceUUID = mustUUID(protocol.ServiceUUID)
	writeUUID   = mustUUID(protocol.WriteCharUUID)
	notifyUUID  = mustUUID(protocol.NotifyCharUUID)
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("invalid UUID %q: %v", s, err))
	}
	return u
}

// Transport implements driver.Transport on the default adapter.
type Transport struct {
	adapter *bluetooth.Adapter
	cfg     Config

	enableOnce sync.Once
	enableErr  error
	scanMu     sync.Mutex

	mu           sync.Mutex
	sightings    map[string]sighting
	addresses    map[string]bluetooth.Address
	disconnectFn map[string]func(error)
}

// New creates a transport on bluetooth.DefaultAdapter.
func New(cfg Config) *Transport {
	return &Transport{
		adapter:      bluetooth.DefaultAdapter,
		cfg:          cfg.withDefaults(),
		sightings:    make(map[string]sighting),
		addresses:    make(map[string]bluetooth.Address),
		disconnectFn: make(map[string]func(error)),
	}
}

// Enable powers up the adapter and installs the link-state handler.
func (t *Transport) Enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enable adapter: %w", err)
			return
		}
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			addr := device.Address.String()
			t.mu.Lock()
			fn := t.disconnectFn[addr]
			delete(t.disconnectFn, addr)
			t.mu.Unlock()
			if fn != nil {
				fn(ErrLinkLost)
			}
		})
	})
	return t.enableErr
}

// Scan listens for advertisements for up to timeout and returns every
// device whose name matches the configured prefixes.
func (t *Transport) Scan(ctx context.Context, timeout time.Duration) ([]driver.DeviceHandle, error) {
	if err := t.Enable(); err != nil {
		return nil, err
	}
	found := make(map[string]driver.DeviceHandle)
	err := t.scan(ctx, timeout, func(h driver.DeviceHandle) bool {
		if matchesName(h.Name, t.cfg.NamePrefixes) {
			found[h.Address] = h
		}
		return false
	})
	out := make([]driver.DeviceHandle, 0, len(found))
	for _, h := range found {
		out = append(out, h)
	}
	return out, err
}

// scan runs one bounded scan. stop returning true ends it early.
func (t *Transport) scan(ctx context.Context, timeout time.Duration, stop func(driver.DeviceHandle) bool) error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var once sync.Once
	halt := func() { once.Do(func() { _ = t.adapter.StopScan() }) }

	done := make(chan error, 1)
	go func() {
		done <- t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			h := driver.DeviceHandle{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
			}
			t.remember(h, result.Address)
			if stop(h) {
				halt()
			}
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		halt()
		err := <-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return err
		}
		return ctx.Err()
	}
}

func (t *Transport) remember(h driver.DeviceHandle, addr bluetooth.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.sightings[h.Address]; ok && h.Name == "" {
		// Scan responses without a name keep the name from the advertisement
		h.Name = prev.handle.Name
	}
	t.sightings[h.Address] = sighting{handle: h, seen: time.Now()}
	t.addresses[h.Address] = addr
}

func (t *Transport) cached() (driver.DeviceHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := make([]sighting, 0, len(t.sightings))
	for _, s := range t.sightings {
		list = append(list, s)
	}
	return best(list, t.cfg.Address, t.cfg.NamePrefixes, t.cfg.SightingMaxAge, time.Now())
}

// Resolver returns a driver.Resolver backed by recent scans. When nothing
// suitable has been seen it scans once.
func (t *Transport) Resolver() driver.Resolver {
	return func(ctx context.Context) (driver.DeviceHandle, bool) {
		if h, ok := t.cached(); ok {
			return h, true
		}
		if err := t.Enable(); err != nil {
			logger.LogWarn("⚠️ Bluetooth adapter unavailable: %v", err)
			return driver.DeviceHandle{}, false
		}
		err := t.scan(ctx, t.cfg.ScanTimeout, func(h driver.DeviceHandle) bool {
			if t.cfg.Address != "" {
				return sameAddress(h.Address, t.cfg.Address)
			}
			return matchesName(h.Name, t.cfg.NamePrefixes)
		})
		if err != nil {
			logger.LogDebug("BLE scan ended with error: %v", err)
		}
		return t.cached()
	}
}

// Connect opens a GATT session and locates the vendor characteristics.
func (t *Transport) Connect(ctx context.Context, handle driver.DeviceHandle, onDisconnect func(error)) (driver.Session, error) {
	if err := t.Enable(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	addr, ok := t.addresses[handle.Address]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSeen, handle.Address)
	}

	type result struct {
		dev bluetooth.Device
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev, err}
	}()

	var dev bluetooth.Device
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("connect %s: %w", handle.Address, r.err)
		}
		dev = r.dev
	case <-ctx.Done():
		// The adapter call cannot be cancelled; drop the link if it completes late
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connect %s: %w", handle.Address, ctx.Err())
	}

	sess, err := openSession(dev)
	if err != nil {
		_ = dev.Disconnect()
		return nil, err
	}

	t.mu.Lock()
	t.disconnectFn[handle.Address] = onDisconnect
	t.mu.Unlock()
	return sess, nil
}

func openSession(dev bluetooth.Device) (*session, error) {
	services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not found", protocol.ServiceUUID)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeUUID, notifyUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}

	s := &session{device: dev}
	var haveWrite, haveNotify bool
	for _, c := range chars {
		switch c.UUID() {
		case writeUUID:
			s.write = c
			haveWrite = true
		case notifyUUID:
			s.notify = c
			haveNotify = true
		}
	}
	if !haveWrite || !haveNotify {
		return nil, fmt.Errorf("vendor characteristics missing (write=%v notify=%v)", haveWrite, haveNotify)
	}
	return s, nil
}

// session is one GATT connection.
type session struct {
	device bluetooth.Device
	write  bluetooth.DeviceCharacteristic
	notify bluetooth.DeviceCharacteristic
}

func (s *session) Write(frame []byte) error {
	_, err := s.write.WriteWithoutResponse(frame)
	return err
}

func (s *session) EnableNotifications(fn func([]byte)) error {
	return s.notify.EnableNotifications(fn)
}

func (s *session) DisableNotifications() error {
	return s.notify.EnableNotifications(nil)
}

func (s *session) Disconnect() error {
	return s.device.Disconnect()
}

var _ driver.Transport = (*Transport)(nil)
