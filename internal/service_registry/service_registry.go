package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/heros-path/internal/metrics_collectors"
	"github.com/benmeehan/heros-path/internal/services"
	"github.com/benmeehan/heros-path/internal/smoothing"
	"github.com/benmeehan/heros-path/internal/store"
	"github.com/benmeehan/heros-path/internal/utils"
	"github.com/benmeehan/heros-path/pkg/location"
	"github.com/benmeehan/heros-path/pkg/mqtt"
	"github.com/benmeehan/heros-path/pkg/places"
	"github.com/rs/zerolog"
)

// Service is a long-running component started and stopped by the registry.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the agent's services.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	placeStore  store.PlaceStore
	Logger      zerolog.Logger

	// Overridable constructors for the external collaborators.
	newSearcher func(apiKey string, opts places.Options) (services.Searcher, error)
	newProvider func(config *utils.Config) (location.Provider, error)
}

// NewServiceRegistry initializes a new service registry with dependencies.
// placeStore may be nil when no storage backend is enabled.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, placeStore store.PlaceStore, logger zerolog.Logger) *ServiceRegistry {
	sr := &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		placeStore: placeStore,
		Logger:     logger,
	}
	sr.newSearcher = func(apiKey string, opts places.Options) (services.Searcher, error) {
		return places.NewGoogleSearcher(apiKey, opts)
	}
	sr.newProvider = sr.defaultProvider
	return sr
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in start order.
func (sr *ServiceRegistry) Services() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	for _, e := range stopErrors {
		sr.Logger.Error().Err(e).Msg("Service stop failure")
	}
	return errors.Join(stopErrors...)
}

// RegisterServices creates and registers the enabled services. Discovery is
// registered before tracking so that it is still running while tracking
// hands over the trips it closes on shutdown.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceID string) error {
	var discoverySvc *services.DiscoveryService
	var trackingSvc *services.TrackingService

	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "discovery",
			enabled: config.Services.Discovery.Enabled,
			constructor: func() (Service, error) {
				d := config.Services.Discovery
				searcher, err := sr.newSearcher(d.MapsAPIKey, places.Options{
					PlaceType: d.PlaceType,
					Keyword:   d.Keyword,
					MaxPages:  d.MaxPages,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create places searcher: %w", err)
				}
				discoverySvc = services.NewDiscoveryService(services.DiscoveryConfig{
					SummaryTopic:       d.SummaryTopic,
					PingTopic:          d.PingTopic,
					QOS:                d.QOS,
					DeviceID:           deviceID,
					PingRadiusMeters:   d.PingRadiusMeters,
					SARRadiusMeters:    d.SARRadiusMeters,
					RouteSpacingMeters: d.RouteSpacingMeters,
					Workers:            d.Workers,
					Timeout:            d.Timeout,
					ExcludedTypes:      d.ExcludedTypes,
				}, searcher, sr.placeStore, sr.mqttClient, sr.Logger.With().Str("service", "discovery").Logger())
				return discoverySvc, nil
			},
		},
		{
			name:    "tracking",
			enabled: config.Services.Tracking.Enabled,
			constructor: func() (Service, error) {
				t := config.Services.Tracking
				provider, err := sr.newProvider(config)
				if err != nil {
					return nil, err
				}
				logger := sr.Logger.With().Str("service", "tracking").Logger()
				tracking := services.NewTrackingService(
					t.SamplesTopic,
					t.SmoothedTopic,
					t.QOS,
					t.Interval,
					deviceID,
					smoothing.NewFilter(config.Smoothing, logger),
					sr.mqttClient,
					provider,
					logger,
				)
				if discoverySvc != nil {
					tracking.OnTripComplete(discoverySvc.HandleTrip)
					discoverySvc.AcceptPingsFor(tracking.IsOpen)
				}
				trackingSvc = tracking
				return tracking, nil
			},
		},
		{
			name:    "status",
			enabled: config.Services.Status.Enabled,
			constructor: func() (Service, error) {
				st := config.Services.Status
				logger := sr.Logger.With().Str("service", "status").Logger()
				registry := metrics_collectors.NewMetricsRegistry()
				registry.Register(metrics_collectors.NewProcessMetricCollector(logger))
				if trackingSvc != nil {
					registry.Register(&metrics_collectors.SmoothingMetricCollector{Source: trackingSvc})
					registry.Register(&metrics_collectors.SessionMetricCollector{Source: trackingSvc})
				}
				if discoverySvc != nil {
					registry.Register(&metrics_collectors.PingMetricCollector{Source: discoverySvc})
				}
				return services.NewStatusService(st.Topic, st.Interval, st.QOS, deviceID, registry, sr.mqttClient, logger), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// defaultProvider builds the tracking service's local location provider.
func (sr *ServiceRegistry) defaultProvider(config *utils.Config) (location.Provider, error) {
	t := config.Services.Tracking
	switch t.Provider {
	case utils.ProviderSensor:
		return location.NewDeviceSensorProvider(t.GPSDevicePort, t.GPSDeviceBaudRate, t.UERE), nil
	case utils.ProviderGoogle:
		provider, err := location.NewGoogleGeolocationProvider(t.MapsAPIKey, t.ModemIndex, sr.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Geolocation provider: %w", err)
		}
		return provider, nil
	default:
		return nil, nil
	}
}
