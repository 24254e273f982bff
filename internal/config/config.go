package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the console.
type Config struct {
	Version   string                   `mapstructure:"version" yaml:"version"`
	Services  map[string]ServiceConfig `mapstructure:"services" yaml:"services,omitempty"`
	Auth      AuthConfig               `mapstructure:"auth" yaml:"auth"`
	Heartbeat HeartbeatConfig          `mapstructure:"heartbeat" yaml:"heartbeat"`
	Bridge    BridgeConfig             `mapstructure:"bridge" yaml:"bridge"`
	Tunnel    TunnelConfig             `mapstructure:"tunnel" yaml:"tunnel"`
	Log       LogConfig                `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig            `mapstructure:"storage" yaml:"storage"`
}

// ServiceConfig describes one registered agent backend.
type ServiceConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	URL     string `mapstructure:"url" yaml:"url"`
	Default bool   `mapstructure:"default" yaml:"default,omitempty"`
}

// AuthConfig controls credential lifetime and refresh policy.
type AuthConfig struct {
	// TokenTTL is the hard ceiling on credential age. A credential older
	// than this is expired regardless of what the server thinks.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	// RefreshAfter is the soft threshold: once a credential is older than
	// this, the refresher starts asking the server for a new token.
	RefreshAfter time.Duration `mapstructure:"refresh_after" yaml:"refresh_after"`
	// CheckInterval is how often the refresher wakes up.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	// MinCheckGap is the minimum time between refresh attempts per service.
	MinCheckGap time.Duration `mapstructure:"min_check_gap" yaml:"min_check_gap"`
	// VerifyTimeout bounds the verify/health round trip.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
}

// HeartbeatConfig controls session keepalive pings.
type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// BridgeConfig configures the local console bridge server.
type BridgeConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// TunnelConfig configures the subdomain proxy client.
type TunnelConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// LogConfig mirrors pkg/logger.LogConfig so the config file stays flat.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig configures the local sqlite database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultService returns the id of the default service, or the only
// registered service when exactly one exists.
func (c *Config) DefaultService() (string, bool) {
	for id, svc := range c.Services {
		if svc.Default {
			return id, true
		}
	}
	if len(c.Services) == 1 {
		for id := range c.Services {
			return id, true
		}
	}
	return "", false
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load loads configuration with priority ENV > file > defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("AGENTDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// A missing file just means defaults; a broken file is an error.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			if !os.IsNotExist(err) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// AddService registers a backend service and persists the change.
func AddService(id string, svc ServiceConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig == nil {
		return errors.New("config not loaded")
	}
	if globalConfig.Services == nil {
		globalConfig.Services = make(map[string]ServiceConfig)
	}
	if _, exists := globalConfig.Services[id]; exists {
		return fmt.Errorf("service already exists: %s", id)
	}
	globalConfig.Services[id] = svc
	viper.Set("services", globalConfig.Services)
	if configPath != "" {
		return save()
	}
	return nil
}

// RemoveService deletes a backend service and persists the change.
func RemoveService(id string) error {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig == nil {
		return errors.New("config not loaded")
	}
	if _, exists := globalConfig.Services[id]; !exists {
		return fmt.Errorf("service not found: %s", id)
	}
	delete(globalConfig.Services, id)
	viper.Set("services", globalConfig.Services)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save persists the current configuration to the loaded path.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save writes the configuration; caller must hold mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may contain tunnel API keys.
	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, configPath)
}

// Reset clears global state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
