package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smarthome-bridge/smarthome-bridge/internal/push"
)

// Config represents the bridge configuration
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Environment string          `yaml:"environment"`
	API         APIConfig       `yaml:"api"`
	LocalAPI    LocalAPIConfig  `yaml:"local_api"`
	Storage     StorageConfig   `yaml:"storage"`
	MQTT        push.MQTTConfig `yaml:"mqtt"`
	NATS        NATSConfig      `yaml:"nats"`
	Assets      []AssetConfig   `yaml:"assets"`
	Log         LogConfig       `yaml:"log"`
}

// ServerConfig represents process identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig allows overriding the environment's URL pair, for test rigs
// pointed at a local stub.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	AuthURL string `yaml:"auth_url"`
}

// LocalAPIConfig represents the local REST API configuration
type LocalAPIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig represents credential store configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig represents the staging push transport configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	Subjects          []string      `yaml:"subjects"`
}

// AssetConfig maps an asset to the devices the bridge should track. Used
// as a fallback when the credential store has no persisted mapping.
type AssetConfig struct {
	ID        string   `yaml:"id"`
	DeviceIDs []string `yaml:"device_ids"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Endpoints is a base/auth URL pair for one environment.
type Endpoints struct {
	BaseURL string
	AuthURL string
}

// environments is the fixed lookup table; base/auth pairs are not
// runtime-configurable per request.
var environments = map[string]Endpoints{
	"production": {BaseURL: "https://app2.keyless.rocks", AuthURL: "https://remotapp.rently.com"},
	"atlas":      {BaseURL: "https://smarthome.rentlyatlas.com", AuthURL: "https://remotapp.rentlyatlas.com"},
	"aura":       {BaseURL: "https://smarthome.rentlyaura.com", AuthURL: "https://remotapp.rentlyprotons.com"},
	"auraqe":     {BaseURL: "https://smarthome.qe.rentlyaura.com", AuthURL: "https://remotapp.qe.rentlyaura.com"},
	"core":       {BaseURL: "https://smarthome.rentlycore.com", AuthURL: "https://remotapp.rentlycore.com"},
	"coreqe":     {BaseURL: "https://smarthome.qe.rentlycore.com", AuthURL: "https://remotapp.qe.rentlycore.com"},
	"opcertify":  {BaseURL: "https://smarthome.rentlycertify.com", AuthURL: "https://remotapp.rentlycertify.com"},
	"pulse":      {BaseURL: "https://smarthome.rentlypulse.com", AuthURL: "https://remotapp.rentlypulse.com"},
	"qeop":       {BaseURL: "https://smarthome.rentlyqeop.com", AuthURL: "https://remotapp.rentlyqeop.com"},
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if _, err := cfg.Endpoints(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Endpoints resolves the URL pair: explicit api overrides win, otherwise
// the environment table decides.
func (c *Config) Endpoints() (Endpoints, error) {
	if c.API.BaseURL != "" && c.API.AuthURL != "" {
		return Endpoints{BaseURL: c.API.BaseURL, AuthURL: c.API.AuthURL}, nil
	}

	ep, ok := environments[c.Environment]
	if !ok {
		return Endpoints{}, fmt.Errorf("unknown environment: %s", c.Environment)
	}

	if c.API.BaseURL != "" {
		ep.BaseURL = c.API.BaseURL
	}
	if c.API.AuthURL != "" {
		ep.AuthURL = c.API.AuthURL
	}
	return ep, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("BRIDGE_ENV"); env != "" {
		c.Environment = env
	}

	if baseURL := os.Getenv("BRIDGE_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}

	if authURL := os.Getenv("BRIDGE_AUTH_URL"); authURL != "" {
		c.API.AuthURL = authURL
	}

	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		c.MQTT.BrokerURL = brokerURL
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if path := os.Getenv("BRIDGE_CREDENTIALS_FILE"); path != "" {
		c.Storage.Path = path
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// setDefaults fills the values a minimal config file leaves out
func (c *Config) setDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.LocalAPI.Host == "" {
		c.LocalAPI.Host = "127.0.0.1"
	}
	if c.LocalAPI.Port == 0 {
		c.LocalAPI.Port = 8090
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "credentials.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 5 * time.Second
	}
	if c.MQTT.QoS == 0 {
		c.MQTT.QoS = 1
	}
}
