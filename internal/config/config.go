// Package config turns the viper key space into an immutable Config that
// the daemon and CLI pass around. Nothing below cmd/ reads viper directly.
package config

import (
	"fmt"
	"time"

	"github.com/OpenCHAMI/pductl/internal/util"
	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/OpenCHAMI/pductl/pkg/secrets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Port maps an HTTP endpoint name to a serial device.
type Port struct {
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	Device   string `mapstructure:"device" json:"device" yaml:"device"`
	Username string `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password string `mapstructure:"password" json:"-" yaml:"-"`
}

type Daemon struct {
	Endpoint     string
	Token        string
	JWTPublicKey string
	Retries      int
	RetryDelay   time.Duration
}

type Config struct {
	Daemon      Daemon
	Ports       []Port
	SecretsFile string
	HistoryFile string
	PDU         pdu.Options
}

// SetDefaults registers the default value of every key Load reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("daemon.endpoint", ":8080")
	v.SetDefault("daemon.token", "")
	v.SetDefault("daemon.jwt-public-key", "")
	v.SetDefault("daemon.retries", 10)
	v.SetDefault("daemon.retry-delay", 500*time.Millisecond)
	v.SetDefault("secrets.file", "")
	v.SetDefault("history.file", "")
	v.SetDefault("pdu.read-timeout", pdu.DefaultReadTimeout)
	v.SetDefault("pdu.ready-timeout", pdu.DefaultReadyTimeout)
	v.SetDefault("pdu.connect-attempts", pdu.DefaultConnectAttempts)
	v.SetDefault("pdu.retry-delay", pdu.DefaultRetryDelay)
	v.SetDefault("pdu.monitor-interval", pdu.DefaultMonitorInterval)
	v.SetDefault("pdu.settle-delay", pdu.DefaultSettleDelay)
}

// LoadFile reads a config file at an explicit path into v. There are
// intentionally no search paths here; flags and environment variables
// still take precedence over values from the file.
func LoadFile(v *viper.Viper, path string) error {
	dir, filename, ext := util.SplitPathForViper(path)
	v.AddConfigPath(dir)
	v.SetConfigName(filename)
	v.SetConfigType(ext)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to load config file: %w", err)
	}
	return nil
}

// Load snapshots v into a Config and validates the port mappings.
func Load(v *viper.Viper) (*Config, error) {
	var ports []Port
	if err := v.UnmarshalKey("ports", &ports); err != nil {
		return nil, fmt.Errorf("failed to decode ports: %w", err)
	}

	seen := make(map[string]bool, len(ports))
	for i, p := range ports {
		if p.Endpoint == "" || p.Device == "" {
			return nil, fmt.Errorf("ports[%d]: endpoint and device are required", i)
		}
		if seen[p.Endpoint] {
			return nil, fmt.Errorf("ports[%d]: duplicate endpoint %q", i, p.Endpoint)
		}
		seen[p.Endpoint] = true
	}

	cfg := &Config{
		Daemon: Daemon{
			Endpoint:     v.GetString("daemon.endpoint"),
			Token:        v.GetString("daemon.token"),
			JWTPublicKey: v.GetString("daemon.jwt-public-key"),
			Retries:      v.GetInt("daemon.retries"),
			RetryDelay:   v.GetDuration("daemon.retry-delay"),
		},
		Ports:       ports,
		SecretsFile: v.GetString("secrets.file"),
		HistoryFile: v.GetString("history.file"),
		PDU: pdu.Options{
			ReadTimeout:     v.GetDuration("pdu.read-timeout"),
			ReadyTimeout:    v.GetDuration("pdu.ready-timeout"),
			ConnectAttempts: v.GetInt("pdu.connect-attempts"),
			RetryDelay:      v.GetDuration("pdu.retry-delay"),
			MonitorInterval: v.GetDuration("pdu.monitor-interval"),
			SettleDelay:     v.GetDuration("pdu.settle-delay"),
		},
	}
	if cfg.Daemon.Retries < 1 {
		cfg.Daemon.Retries = 1
	}
	return cfg, nil
}

// Port returns the mapping for endpoint.
func (c *Config) Port(endpoint string) (Port, bool) {
	for _, p := range c.Ports {
		if p.Endpoint == endpoint {
			return p, true
		}
	}
	return Port{}, false
}

// Credentials resolves the login for p: explicit values from the config
// first, then the secret store keyed by endpoint, then the factory default.
func (c *Config) Credentials(p Port, store secrets.SecretStore) pdu.Credentials {
	if p.Username != "" || p.Password != "" {
		creds := pdu.DefaultCredentials
		if p.Username != "" {
			creds.Username = p.Username
		}
		if p.Password != "" {
			creds.Password = p.Password
		}
		return creds
	}
	if store != nil {
		creds, err := secrets.GetCredentials(store, p.Endpoint)
		if err == nil {
			return creds
		}
		log.Debug().Err(err).Str("endpoint", p.Endpoint).Msg("using default credentials")
	}
	return pdu.DefaultCredentials
}

// OpenSecrets opens the configured secret store, or returns nil when none
// is configured.
func (c *Config) OpenSecrets() (secrets.SecretStore, error) {
	if c.SecretsFile == "" {
		return nil, nil
	}
	return secrets.OpenStore(c.SecretsFile)
}
