package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/logger"
)

// Config holds the settings of the supervisor process.
type Config struct {
	ProcessConfig `yaml:",inline"`

	State   StateConfig   `yaml:"state"`
	Journal JournalConfig `yaml:"journal"`
	Kafka   KafkaConfig   `yaml:"kafka"`

	// Messages overrides notification templates by event type.
	Messages map[string]string `yaml:"messages,omitempty"`
	// Devices are registered before the zones start.
	Devices []DeviceConfig `yaml:"devices,omitempty"`
	// Zones are the configured security zones.
	Zones []ZoneConfig `yaml:"zones"`
}

// ProcessConfig holds the top-level process settings.
type ProcessConfig struct {
	// LogLevel is the minimal level of emitted log entries.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format,omitempty" env:"LOG_FORMAT"`
	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	// GRPCAddr is the listen address of the gRPC health service.
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	// InitDelay postpones zone start after process startup.
	InitDelay time.Duration `yaml:"init_delay" env:"INIT_DELAY"`
	// Timeout bounds client calls and graceful shutdown.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// StateConfig selects where zone snapshots are persisted.
type StateConfig struct {
	// Backend is "file" or "redis".
	Backend string `yaml:"backend" env:"STATE_BACKEND"`
	// File is the state file of the file backend.
	File  string      `yaml:"file" env:"STATE_FILE"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR"`
	Password  string `yaml:"password,omitempty" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix,omitempty" env:"REDIS_KEY_PREFIX"`
}

// JournalConfig configures the event journal; an empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path" env:"JOURNAL_PATH"`
}

// KafkaConfig configures the Kafka event sink; no brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic,omitempty" env:"KAFKA_TOPIC"`
}

// DeviceConfig describes a device known at startup.
type DeviceConfig struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Room    string         `yaml:"room,omitempty"`
	Kind    string         `yaml:"kind,omitempty"`
	Metrics map[string]any `yaml:"metrics,omitempty"`
}

// ZoneConfig describes one security zone.
type ZoneConfig struct {
	ID                    string       `yaml:"id"`
	Title                 string       `yaml:"title"`
	Room                  string       `yaml:"room,omitempty"`
	Category              string       `yaml:"category"`
	CategoryLabel         string       `yaml:"category_label,omitempty"`
	DelayActivateSeconds  int          `yaml:"delay_activate_seconds"`
	DelayAlarmSeconds     int          `yaml:"delay_alarm_seconds"`
	TimeoutSeconds        int          `yaml:"timeout_seconds"`
	Cancelable            bool         `yaml:"cancelable"`
	TestThreshold         int          `yaml:"test_threshold"`
	SingleZonePerCategory bool         `yaml:"single_zone_per_category"`
	Tests                 []TestConfig `yaml:"tests"`
}

// TestConfig describes one test rule of a zone.
type TestConfig struct {
	Kind     string `yaml:"kind"`
	Device   string `yaml:"device"`
	Operator string `yaml:"operator,omitempty"`
	Value    any    `yaml:"value"`
	Phase    string `yaml:"phase,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for supervisor settings.
	DefaultConfigFilename = "security-zone.yaml"

	// DefaultStateFilename is the default filename for the zone state document.
	DefaultStateFilename = "security-zone-state.json"

	// DefaultHTTPAddr is the default listen address of the HTTP API.
	DefaultHTTPAddr = ":8080"

	// DefaultGRPCAddr is the default listen address of the gRPC health service.
	DefaultGRPCAddr = ":50051"

	// DefaultKafkaTopic is the Kafka topic used when none is configured.
	DefaultKafkaTopic = "security-zone-events"

	// DefaultTimeout is the default duration for client calls and shutdown.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SECURITY_ZONE_"

	// BackendFile stores state in a local file.
	BackendFile = "file"
	// BackendRedis stores state in Redis.
	BackendRedis = "redis"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownLogLevel is returned for unparsable log levels.
	errUnknownLogLevel = errors.New("unknown log level")
	// errUnknownLogFormat is returned for log encodings other than console and json.
	errUnknownLogFormat = errors.New("unknown log format")
	// errUnknownBackend is returned for state backends other than file and redis.
	errUnknownBackend = errors.New("unknown state backend")
	// errRedisAddrRequired is returned when the redis backend has no address.
	errRedisAddrRequired = errors.New("redis address must be provided")
	// errDuplicateID is returned when two zones or devices share an id.
	errDuplicateID = errors.New("duplicate id")
	// errDeviceIDRequired is returned when a device has no id.
	errDeviceIDRequired = errors.New("device id must be provided")
	// errZoneIDRequired is returned when a zone has no id.
	errZoneIDRequired = errors.New("zone id must be provided")
	// errUnknownMessage is returned for message overrides of unknown events.
	errUnknownMessage = errors.New("unknown message event")
)

// Load reads configuration from the provided path, applies environment
// overrides (a .env file in the working directory is honoured) and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overlays SECURITY_ZONE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	_ = godotenv.Load()

	if cfg == nil {
		return errConfigIsNotSet
	}

	// Zones and devices are never taken from the environment.
	overlay := struct {
		Process *ProcessConfig
		State   *StateConfig
		Journal *JournalConfig
		Kafka   *KafkaConfig
	}{&cfg.ProcessConfig, &cfg.State, &cfg.Journal, &cfg.Kafka}

	if err := env.ParseWithOptions(&overlay, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	return nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	if !logger.ValidFormat(cfg.LogFormat) {
		return fmt.Errorf("%q: %w", cfg.LogFormat, errUnknownLogFormat)
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}

	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = DefaultGRPCAddr
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.InitDelay < 0 {
		cfg.InitDelay = 0
	}

	if err := validateState(&cfg.State); err != nil {
		return err
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}

	for name := range cfg.Messages {
		if !slices.Contains(events.Types, events.Type(name)) {
			return fmt.Errorf("%q: %w", name, errUnknownMessage)
		}
	}

	if err := validateDevices(cfg.Devices); err != nil {
		return err
	}

	return validateZones(cfg.Zones)
}

func validateState(state *StateConfig) error {
	if state.Backend == "" {
		state.Backend = BackendFile
	}

	switch state.Backend {
	case BackendFile:
		if state.File == "" {
			state.File = DefaultStateFilename
		}
	case BackendRedis:
		if state.Redis.Addr == "" {
			return errRedisAddrRequired
		}
	default:
		return fmt.Errorf("%q: %w", state.Backend, errUnknownBackend)
	}

	return nil
}

func validateDevices(devices []DeviceConfig) error {
	seen := make(map[string]struct{}, len(devices))

	for i := range devices {
		id := devices[i].ID
		if id == "" {
			return fmt.Errorf("device %d: %w", i, errDeviceIDRequired)
		}

		if _, ok := seen[id]; ok {
			return fmt.Errorf("device %s: %w", id, errDuplicateID)
		}

		seen[id] = struct{}{}
	}

	return nil
}

// validateZones checks zone identity only. Per-zone settings are validated
// when the zone is created, so one broken zone does not stop the others.
func validateZones(zones []ZoneConfig) error {
	seen := make(map[string]struct{}, len(zones))

	for i := range zones {
		id := zones[i].ID
		if id == "" {
			return fmt.Errorf("zone %d: %w", i, errZoneIDRequired)
		}

		if _, ok := seen[id]; ok {
			return fmt.Errorf("zone %s: %w", id, errDuplicateID)
		}

		seen[id] = struct{}{}

		for j := range zones[i].Tests {
			if zones[i].Tests[j].Phase == "" {
				zones[i].Tests[j].Phase = string(domain.PhaseImmediate)
			}
		}
	}

	return nil
}

// Settings converts the zone configuration into domain settings.
// The category label is kept only for CategoryOther.
func (z *ZoneConfig) Settings() domain.Settings {
	settings := domain.Settings{
		ID:                    z.ID,
		Title:                 z.Title,
		Room:                  z.Room,
		Category:              domain.Category(z.Category),
		DelayActivateSeconds:  z.DelayActivateSeconds,
		DelayAlarmSeconds:     z.DelayAlarmSeconds,
		TimeoutSeconds:        z.TimeoutSeconds,
		Cancelable:            z.Cancelable,
		TestThreshold:         z.TestThreshold,
		SingleZonePerCategory: z.SingleZonePerCategory,
		Tests:                 make([]domain.TestRule, 0, len(z.Tests)),
	}

	if settings.Title == "" {
		settings.Title = z.ID
	}

	if settings.Category == domain.CategoryOther {
		settings.CategoryLabel = z.CategoryLabel
	}

	for _, test := range z.Tests {
		settings.Tests = append(settings.Tests, domain.TestRule{
			Kind:     domain.Kind(test.Kind),
			Device:   test.Device,
			Operator: domain.Operator(test.Operator),
			Value:    test.Value,
			Phase:    domain.Phase(test.Phase),
		})
	}

	return settings
}
