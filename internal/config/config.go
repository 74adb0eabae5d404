// Package config handles configuration loading, validation, and persistence
// for the Starbridge proxy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir    = "config"
	DefaultConfigFile   = "config.json"
	DefaultAPIPort      = 5000
	DefaultListenPort   = 21025
	DefaultUpstreamPort = 21024
)

// Config is the root configuration structure for Starbridge.
type Config struct {
	mu       sync.RWMutex
	path     string
	firstRun bool

	Proxy           ProxyData                 `json:"proxy"`
	ApplicationData ApplicationData           `json:"application_data"`
	Plugins         map[string]map[string]any `json:"plugins"`
}

// ProxyData contains the intercepting proxy's own settings.
type ProxyData struct {
	// Where game clients connect. This is the port the real game server
	// would normally occupy.
	ListenAddress string `json:"listen_address"`
	ListenPort    int    `json:"listen_port"`

	// The real game server the proxy forwards to.
	UpstreamAddress string `json:"upstream_address"`
	UpstreamPort    int    `json:"upstream_port"`

	// Decode cache tuning. Payloads below min_cache_size bypass the cache;
	// packet_reap_time_sec is the decay sweep interval.
	MinCacheSize      int `json:"min_cache_size"`
	PacketReapTimeSec int `json:"packet_reap_time_sec"`
}

// ApplicationData contains proxy application configuration.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	ChatLog  ChatLogConfig  `json:"chat_log"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds periodic task interval settings.
type TimerConfig struct {
	StatusPublishInterval int `json:"status_publish_interval_sec"`
	TaskCleanupInterval   int `json:"task_cleanup_interval_sec"`
}

// ChatLogConfig holds chat persistence settings.
type ChatLogConfig struct {
	Enabled       bool   `json:"enabled"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// DatabaseConfig holds SQLite storage settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	APIPort        int      `json:"api_port"`
	APIToken       string   `json:"api_token"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyData{
			ListenAddress:     "0.0.0.0",
			ListenPort:        DefaultListenPort,
			UpstreamAddress:   "127.0.0.1",
			UpstreamPort:      DefaultUpstreamPort,
			MinCacheSize:      32,
			PacketReapTimeSec: 600,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				StatusPublishInterval: 10,
				TaskCleanupInterval:   1800,
			},
			ChatLog: ChatLogConfig{
				Enabled:       true,
				RetentionDays: 30,
				CleanupTime:   "04:00",
			},
			Database: DatabaseConfig{
				Path: "starbridge.db",
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Security: SecurityConfig{
				APIPort:      DefaultAPIPort,
				RateLimitRPS: 100,
				AuthDisabled: true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
		Plugins: map[string]map[string]any{},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			cfg.firstRun = true
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// IsFirstRun reports whether Load had to create a fresh default config.
func (c *Config) IsFirstRun() bool {
	return c.firstRun
}

// GetProxy returns a copy of the proxy configuration.
func (c *Config) GetProxy() ProxyData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Proxy
}

// SetProxy updates the proxy configuration.
func (c *Config) SetProxy(data ProxyData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Proxy = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// PluginSection returns the configuration block for a named plugin, or an
// empty map when none was written.
func (c *Config) PluginSection(name string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if section, ok := c.Plugins[name]; ok {
		out := make(map[string]any, len(section))
		for k, v := range section {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}

// UpdateProxyField updates a specific field in the proxy data.
func (c *Config) UpdateProxyField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current proxy data to map
	data, _ := json.Marshal(c.Proxy)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	// Update field
	m[key] = value

	// Unmarshal back
	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.Proxy); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// UpdateAppField updates a specific field in application data.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ApplicationData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ApplicationData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// ListenAddr returns the proxy listen address in host:port form.
func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Proxy.ListenAddress, c.Proxy.ListenPort)
}

// UpstreamAddr returns the upstream server address in host:port form.
func (c *Config) UpstreamAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Proxy.UpstreamAddress, c.Proxy.UpstreamPort)
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
