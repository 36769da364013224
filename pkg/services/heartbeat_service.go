package services

import (
	"context"
	"time"

	"marstek-ble-bridge/pkg/logger"
)

// AvailabilitySource reports device availability
type AvailabilitySource interface {
	IsOnline() bool
}

// HeartbeatService manages periodic availability refreshes
// Single Responsibility: keep the retained availability in step with the device
type HeartbeatService struct {
	publisher Publisher
	health    AvailabilitySource
	interval  time.Duration
}

// NewHeartbeatService creates a new heartbeat service
func NewHeartbeatService(publisher Publisher, health AvailabilitySource, interval time.Duration) *HeartbeatService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HeartbeatService{
		publisher: publisher,
		health:    health,
		interval:  interval,
	}
}

// Start begins the heartbeat loop
func (s *HeartbeatService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("💓 Heartbeat service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔇 Heartbeat service stopped")
			return nil
		case <-ticker.C:
			s.SendHeartbeat(ctx)
		}
	}
}

// SendHeartbeat republishes the current availability
func (s *HeartbeatService) SendHeartbeat(ctx context.Context) {
	online := s.health.IsOnline()
	if err := s.publisher.PublishAvailability(ctx, online); err != nil {
		logger.LogError("⚠️ Heartbeat failed: %v", err)
		return
	}
	if online {
		logger.LogDebug("💓 Heartbeat sent: online")
	} else {
		logger.LogDebug("💔 Heartbeat sent: offline")
	}
}
