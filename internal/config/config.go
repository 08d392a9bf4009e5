// Package config provides configuration management for the pen bridge.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Device  DeviceConfig  `yaml:"device"`
	API     APIConfig     `yaml:"api"`
	UDP     UDPConfig     `yaml:"udp"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

// ServiceConfig describes how to reach the pen service
type ServiceConfig struct {
	// Address is the websocket URL of the service (e.g. "ws://192.168.1.20:7001/pen")
	Address string `yaml:"address"`

	// PackageName identifies this client to the service
	PackageName string `yaml:"package_name"`

	// AutoConnect connects on startup
	AutoConnect bool `yaml:"auto_connect"`

	// ReconnectDelay is the wait before reconnecting after an unexpected loss. Zero disables it.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// DeviceConfig selects and describes the platform used for eligibility checks
type DeviceConfig struct {
	// Kind is "static", "android" or "host"
	Kind           string   `yaml:"kind"`
	Brand          string   `yaml:"brand,omitempty"`
	Manufacturer   string   `yaml:"manufacturer,omitempty"`
	Packages       []string `yaml:"packages,omitempty"`
	SystemFeatures []string `yaml:"system_features,omitempty"`
	Capabilities   []string `yaml:"capabilities,omitempty"`

	// CapabilityProp is the system property read by the android platform
	CapabilityProp string `yaml:"capability_prop,omitempty"`
}

// APIConfig controls the HTTP API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// Token is an optional bearer token required on /api and /ws
	Token string `yaml:"token,omitempty"`
}

// UDPConfig controls the UDP fan-out
type UDPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig controls the MQTT publisher
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// RedisConfig controls the state cache
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Address:        "ws://127.0.0.1:7001/pen",
			PackageName:    "com.spenremote.bridge",
			AutoConnect:    true,
			ReconnectDelay: 5 * time.Second,
		},
		Device: DeviceConfig{
			Kind: "static",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:18090",
		},
		UDP: UDPConfig{
			Enabled: false,
			Listen:  ":18091",
		},
		MQTT: MQTTConfig{
			BrokerURL:   "tcp://127.0.0.1:1883",
			TopicPrefix: "spenremote",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
			TTL:  10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.Address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("config: service.address %q must be a ws:// or wss:// URL", c.Service.Address)
	}
	if c.Service.PackageName == "" {
		return errors.New("config: service.package_name is required")
	}
	switch c.Device.Kind {
	case "", "static", "android", "host":
	default:
		return fmt.Errorf("config: unknown device.kind %q", c.Device.Kind)
	}
	if c.API.Enabled && c.API.Listen == "" {
		return errors.New("config: api.listen is required when the API is enabled")
	}
	if c.UDP.Enabled && c.UDP.Listen == "" {
		return errors.New("config: udp.listen is required when UDP is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return errors.New("config: mqtt.broker_url is required when MQTT is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required when Redis is enabled")
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager for path. An empty path selects the
// per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}, nil
}

// DefaultPath returns the per-user configuration file path
func DefaultPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "spenremote")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "spenremote")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "spenremote")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "spenremote")
	}

	return filepath.Join(configDir, "config.yaml"), nil
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk, then applies environment overrides. A missing
// file leaves the defaults in place.
func (m *Manager) Load() error {
	m.mu.Lock()

	cfg := DefaultConfig()
	data, err := os.ReadFile(m.configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		m.mu.Unlock()
		return err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("config: parse %s: %w", m.configPath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	slog.Info("saving configuration", "path", m.configPath, "bytes", len(data))
	return os.WriteFile(m.configPath, data, 0600)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set replaces the configuration
func (m *Manager) Set(cfg Config) {
	m.mu.Lock()
	m.config = &cfg
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

func applyEnv(cfg *Config) {
	cfg.Service.Address = getEnv("SPENREMOTE_SERVICE_ADDR", cfg.Service.Address)
	cfg.Service.PackageName = getEnv("SPENREMOTE_PACKAGE_NAME", cfg.Service.PackageName)
	cfg.Device.Kind = getEnv("SPENREMOTE_DEVICE_KIND", cfg.Device.Kind)
	cfg.API.Listen = getEnv("SPENREMOTE_API_LISTEN", cfg.API.Listen)
	cfg.API.Token = getEnv("SPENREMOTE_API_TOKEN", cfg.API.Token)
	cfg.UDP.Listen = getEnv("SPENREMOTE_UDP_LISTEN", cfg.UDP.Listen)
	cfg.MQTT.BrokerURL = getEnv("MQTT_BROKER_URL", cfg.MQTT.BrokerURL)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if v, ok := os.LookupEnv("SPENREMOTE_MQTT_ENABLED"); ok {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("SPENREMOTE_REDIS_ENABLED"); ok {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("SPENREMOTE_UDP_ENABLED"); ok {
		cfg.UDP.Enabled = parseBool(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
