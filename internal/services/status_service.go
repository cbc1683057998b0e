package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/heros-path/internal/metrics_collectors"
	"github.com/benmeehan/heros-path/internal/models"
	"github.com/benmeehan/heros-path/pkg/mqtt"
	"github.com/rs/zerolog"
)

// StatusService periodically publishes the agent's health report.
type StatusService struct {
	pubTopic string
	interval time.Duration
	qos      int
	deviceID string

	mqttClient mqtt.MQTTClient
	registry   *metrics_collectors.MetricsRegistry
	logger     zerolog.Logger
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStatusService creates a StatusService reporting every collector in registry.
func NewStatusService(pubTopic string, interval time.Duration, qos int, deviceID string,
	registry *metrics_collectors.MetricsRegistry, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *StatusService {
	return &StatusService{
		pubTopic:   pubTopic,
		interval:   interval,
		qos:        qos,
		deviceID:   deviceID,
		mqttClient: mqttClient,
		registry:   registry,
		logger:     logger,
	}
}

// Start begins the reporting loop.
func (s *StatusService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Publish(s.ctx); err != nil {
					s.logger.Error().Err(err).Msg("Failed to publish agent status")
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()

	s.logger.Info().Str("topic", s.pubTopic).Dur("interval", s.interval).Msg("StatusService started")
	return nil
}

// Stop ends the reporting loop.
func (s *StatusService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.ctx = nil

	s.logger.Info().Msg("StatusService stopped")
	return nil
}

// Publish collects every metric and publishes one report.
func (s *StatusService) Publish(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	now := time.Now()
	report := models.AgentStatus{
		DeviceID:  s.deviceID,
		Timestamp: now,
		Metrics:   s.registry.CollectAll(ctx),
	}
	if !s.startedAt.IsZero() {
		report.Uptime = now.Sub(s.startedAt).Seconds()
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := mqtt.PublishJSON(s.mqttClient, s.pubTopic, s.qos, payload); err != nil {
		return err
	}
	s.logger.Debug().Int("metrics", len(report.Metrics)).Msg("Agent status published")
	return nil
}
