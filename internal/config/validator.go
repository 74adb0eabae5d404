package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateProxy(&cfg.Proxy, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateProxy(data *ProxyData, result *ValidationResult) {
	if strings.TrimSpace(data.UpstreamAddress) == "" {
		result.AddError("proxy.upstream_address", "upstream server address is required")
	}

	validatePort(data.ListenPort, "proxy.listen_port", result)
	validatePort(data.UpstreamPort, "proxy.upstream_port", result)

	if data.ListenPort == data.UpstreamPort &&
		(data.UpstreamAddress == "127.0.0.1" || data.UpstreamAddress == "localhost") {
		result.AddError("proxy.upstream_port",
			"listen and upstream ports conflict: the proxy would dial itself")
	}

	if data.MinCacheSize < 0 {
		result.AddError("proxy.min_cache_size", "minimum cache size cannot be negative")
	}
	if data.PacketReapTimeSec < 1 {
		result.AddError("proxy.packet_reap_time_sec", "reap interval must be at least 1 second")
	}
	if data.PacketReapTimeSec < 10 {
		result.AddWarning("proxy.packet_reap_time_sec",
			"reap interval under 10s evicts entries faster than broadcast frames recur")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.Timers.StatusPublishInterval < 1 {
		result.AddError("application_data.timers.status_publish_interval_sec",
			"status publish interval must be at least 1 second")
	}

	if data.ChatLog.Enabled {
		if data.ChatLog.RetentionDays < 1 {
			result.AddError("application_data.chat_log.retention_days",
				"retention days must be at least 1")
		}
		if strings.TrimSpace(data.Database.Path) == "" {
			result.AddError("application_data.database.path",
				"database path is required when chat logging is enabled")
		}
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	validatePort(data.Security.APIPort, "application_data.security.api_port", result)

	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if !data.Security.AuthDisabled && strings.TrimSpace(data.Security.APIToken) == "" {
		result.AddError("application_data.security.api_token",
			"API token is required when authentication is enabled")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
