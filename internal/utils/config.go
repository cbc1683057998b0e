package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/heros-path/internal/smoothing"
	"github.com/benmeehan/heros-path/pkg/file"
)

// Location provider kinds for the tracking service.
const (
	ProviderNone   = "none"
	ProviderSensor = "sensor"
	ProviderGoogle = "google"
)

// Config represents the structure of the configuration file.
type Config struct {
	Agent struct {
		DeviceID   string `yaml:"device_id"`   // Stable device identifier, generated when empty
		DeviceFile string `yaml:"device_file"` // Where a generated device identifier is kept
		LogLevel   string `yaml:"log_level"`   // zerolog level name
	} `yaml:"agent"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
	} `yaml:"mqtt"`

	Smoothing smoothing.Config `yaml:"smoothing"`

	Services struct {
		Tracking struct {
			Enabled           bool          `yaml:"enabled"`
			SamplesTopic      string        `yaml:"samples_topic"`   // Incoming raw samples from the app
			SmoothedTopic     string        `yaml:"smoothed_topic"`  // Outgoing smoothed positions
			QOS               int           `yaml:"qos"`             // MQTT QoS level for tracking messages
			Interval          time.Duration `yaml:"interval"`        // Poll interval for the local provider
			Provider          string        `yaml:"provider"`        // none, sensor or google
			GPSDevicePort     string        `yaml:"gps_device_port"` // UNIX Port where the GPS sensor is mounted
			GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // The Baud rate for GPS sensor
			UERE              float64       `yaml:"uere"`            // Meters per unit of HDOP
			MapsAPIKey        string        `yaml:"maps_api_key"`    // Google maps API Key
			ModemIndex        int           `yaml:"modem_index"`     // mmcli modem used for cell lookups
		} `yaml:"tracking"`

		Discovery struct {
			Enabled            bool          `yaml:"enabled"`
			SummaryTopic       string        `yaml:"summary_topic"` // Trip summaries are published here
			PingTopic          string        `yaml:"ping_topic"`    // On-demand nearby searches from the app
			QOS                int           `yaml:"qos"`
			MapsAPIKey         string        `yaml:"maps_api_key"`
			PlaceType          string        `yaml:"place_type"`
			Keyword            string        `yaml:"keyword"`
			ExcludedTypes      []string      `yaml:"excluded_types"` // Results carrying any of these types are dropped
			MaxPages           int           `yaml:"max_pages"`
			PingRadiusMeters   uint          `yaml:"ping_radius_meters"`
			SARRadiusMeters    uint          `yaml:"sar_radius_meters"`
			RouteSpacingMeters float64       `yaml:"route_spacing_meters"`
			Workers            int           `yaml:"workers"`
			Timeout            time.Duration `yaml:"timeout"` // Bound on one trip's searches
		} `yaml:"discovery"`

		Status struct {
			Enabled  bool          `yaml:"enabled"`
			Topic    string        `yaml:"topic"`
			QOS      int           `yaml:"qos"`
			Interval time.Duration `yaml:"interval"`
		} `yaml:"status"`
	} `yaml:"services"`

	Storage struct {
		File struct {
			Enabled bool   `yaml:"enabled"`
			Dir     string `yaml:"dir"`
		} `yaml:"file"`

		S3 struct {
			Enabled         bool   `yaml:"enabled"`
			Endpoint        string `yaml:"endpoint"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			UseSSL          bool   `yaml:"use_ssl"`
			Region          string `yaml:"region"`
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix"`
		} `yaml:"s3"`

		DynamoDB struct {
			Enabled bool   `yaml:"enabled"`
			Region  string `yaml:"region"`
			Table   string `yaml:"table"`
		} `yaml:"dynamodb"`
	} `yaml:"storage"`
}

// LoadConfig loads the YAML configuration from the specified file, fills
// defaults and validates it.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.DeviceFile == "" {
		c.Agent.DeviceFile = "data/device.json"
	}
	if c.Agent.LogLevel == "" {
		c.Agent.LogLevel = "info"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "heros-path-agent"
	}

	t := &c.Services.Tracking
	if t.Interval <= 0 {
		t.Interval = time.Second
	}
	if t.Provider == "" {
		t.Provider = ProviderNone
	}
	if t.GPSDeviceBaudRate == 0 {
		t.GPSDeviceBaudRate = 9600
	}

	d := &c.Services.Discovery
	if d.PingRadiusMeters == 0 {
		d.PingRadiusMeters = 200
	}
	if d.SARRadiusMeters == 0 {
		d.SARRadiusMeters = 150
	}
	if d.RouteSpacingMeters <= 0 {
		d.RouteSpacingMeters = 250
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Minute
	}
	if d.MaxPages <= 0 {
		d.MaxPages = 1
	}
	if d.ExcludedTypes == nil {
		d.ExcludedTypes = []string{"political", "locality", "route"}
	}

	if c.Services.Status.Interval <= 0 {
		c.Services.Status.Interval = time.Minute
	}

	if c.Storage.DynamoDB.Region == "" {
		c.Storage.DynamoDB.Region = "us-east-1"
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "us-east-1"
	}
}

// Validate checks that every enabled component has what it needs.
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.ClientID == "" {
		errs = append(errs, errors.New("mqtt.client_id is required"))
	}

	t := c.Services.Tracking
	if t.Enabled {
		if t.SmoothedTopic == "" {
			errs = append(errs, errors.New("services.tracking.smoothed_topic is required"))
		}
		switch t.Provider {
		case ProviderNone:
			if t.SamplesTopic == "" {
				errs = append(errs, errors.New("services.tracking needs samples_topic when provider is none"))
			}
		case ProviderSensor:
			if t.GPSDevicePort == "" {
				errs = append(errs, errors.New("services.tracking.gps_device_port is required for the sensor provider"))
			}
		case ProviderGoogle:
			if t.MapsAPIKey == "" {
				errs = append(errs, errors.New("services.tracking.maps_api_key is required for the google provider"))
			}
		default:
			errs = append(errs, fmt.Errorf("services.tracking.provider %q is not one of none, sensor, google", t.Provider))
		}
	}

	d := c.Services.Discovery
	if d.Enabled && d.MapsAPIKey == "" {
		errs = append(errs, errors.New("services.discovery.maps_api_key is required"))
	}

	if c.Services.Status.Enabled && c.Services.Status.Topic == "" {
		errs = append(errs, errors.New("services.status.topic is required"))
	}

	s := c.Storage
	if s.File.Enabled && s.File.Dir == "" {
		errs = append(errs, errors.New("storage.file.dir is required"))
	}
	if s.S3.Enabled && (s.S3.Endpoint == "" || s.S3.Bucket == "") {
		errs = append(errs, errors.New("storage.s3 needs endpoint and bucket"))
	}
	if s.DynamoDB.Enabled && s.DynamoDB.Table == "" {
		errs = append(errs, errors.New("storage.dynamodb.table is required"))
	}

	return errors.Join(errs...)
}
