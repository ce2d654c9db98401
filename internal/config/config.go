// Package config loads the exporter settings from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"fail2ban-exporter/internal/transport"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Version is set at build time with -ldflags "-X ...config.Version=..."
var Version = "dev"

const (
	MinPort = 1
	MaxPort = 65535

	DefaultScrapeInterval  = 30 * time.Second
	DefaultRefreshInterval = 432000 * time.Second
	DefaultSocketURI       = "unix:///var/run/fail2ban/fail2ban.sock"
	DefaultSocketTimeout   = 10 * time.Second
	DefaultIPAPIURL        = "http://ip-api.com"
	DefaultIPAPIBatchSize  = 100
	DefaultIPAPITimeout    = 15 * time.Second
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 9090
	DefaultLogLevel        = "INFO"
	DefaultNATSSubject     = "fail2ban.attackers"
)

// Config holds the exporter settings
type Config struct {
	// Polling
	ScrapeInterval  time.Duration
	RefreshInterval time.Duration

	// fail2ban control socket
	SocketURI     string
	SocketTimeout time.Duration

	// Geolocation
	IPAPIURL       string
	IPAPIBatchSize int
	IPAPITimeout   time.Duration
	UserAgent      string

	// Exposition
	Host          string
	Port          uint16
	EventsEnabled bool

	LogLevel string

	// Notifications, disabled when empty
	WebhookURL  string
	NATSURL     string
	NATSSubject string

	// YAML file the values above may come from
	ConfigFile string
}

// ListenAddr returns the host:port of the exposition server
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("scrape interval must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("attacker data refresh interval must be positive")
	}
	if _, err := transport.ParseEndpoint(c.SocketURI); err != nil {
		return err
	}
	if c.SocketTimeout < 0 {
		return fmt.Errorf("socket timeout must not be negative")
	}
	if c.IPAPIBatchSize < 1 || c.IPAPIBatchSize > 100 {
		return fmt.Errorf("ip-api batch size must be between 1 and 100")
	}
	if c.IPAPITimeout <= 0 {
		return fmt.Errorf("ip-api timeout must be positive")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < MinPort {
		return fmt.Errorf("port must be between %d and %d", MinPort, MaxPort)
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("NATS subject is required when NATS is enabled")
	}
	return nil
}

// Load reads the configuration. Values come, in order of precedence, from
// the environment, the given .env files (".env" when none are given) and
// the YAML file named by CONFIG_FILE.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	loader := NewEnvLoader("")
	loader.LoadAll()

	configFile := loader.GetString("CONFIG_FILE", "")
	if configFile != "" {
		values, err := readYAML(configFile)
		if err != nil {
			return nil, err
		}
		loader.SetDefaults(values)
	}

	cfg, err := FromLoader(loader)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = configFile
	return cfg, nil
}

// FromLoader builds and validates a Config from loaded variables
func FromLoader(loader *EnvLoader) (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.ScrapeInterval, err = loader.GetDuration("SCRAPE_INTERVAL_SECONDS", DefaultScrapeInterval); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = loader.GetDuration("ATTACKER_DATA_REFRESH_INTERVAL", DefaultRefreshInterval); err != nil {
		return nil, err
	}

	cfg.SocketURI = loader.GetString("F2B_SOCKET_URI", DefaultSocketURI)
	if cfg.SocketTimeout, err = loader.GetDuration("F2B_SOCKET_TIMEOUT", DefaultSocketTimeout); err != nil {
		return nil, err
	}

	if cfg.IPAPIURL, err = loader.GetStringValidated("IPAPI_URL", DefaultIPAPIURL, ValidateNotEmpty, ValidateURL); err != nil {
		return nil, err
	}
	if cfg.IPAPIBatchSize, err = loader.GetInt("IPAPI_BATCH_SIZE", DefaultIPAPIBatchSize); err != nil {
		return nil, err
	}
	if cfg.IPAPITimeout, err = loader.GetDuration("IPAPI_TIMEOUT", DefaultIPAPITimeout); err != nil {
		return nil, err
	}
	cfg.UserAgent = loader.GetString("USER_AGENT", "fail2ban-exporter/"+Version)

	cfg.Host = loader.GetString("APP_HOST", DefaultHost)
	if cfg.Port, err = loader.GetUint16("APP_PORT", DefaultPort); err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	cfg.EventsEnabled = loader.GetBool("EVENTS_ENABLED", true)

	cfg.LogLevel = loader.GetString("LOG_LEVEL", DefaultLogLevel)

	if cfg.WebhookURL, err = loader.GetStringValidated("WEBHOOK_URL", "", ValidateURL); err != nil {
		return nil, err
	}
	cfg.NATSURL = loader.GetString("NATS_URL", "")
	cfg.NATSSubject = loader.GetString("NATS_SUBJECT", DefaultNATSSubject)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readYAML reads a flat mapping of variable names to values
func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, val := range raw {
		switch v := val.(type) {
		case nil:
			continue
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: %s must be a scalar", path, key)
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return values, nil
}
