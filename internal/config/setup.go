package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║        Starbridge - First Run Setup          ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure your proxy.        ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Network ──")

	cfg.Proxy.ListenPort = promptInt(reader, "Port clients connect to", cfg.Proxy.ListenPort)
	cfg.Proxy.UpstreamAddress = promptString(reader, "Game server address", cfg.Proxy.UpstreamAddress)
	cfg.Proxy.UpstreamPort = promptInt(reader, "Game server port", cfg.Proxy.UpstreamPort)

	fmt.Println()
	fmt.Println("── Chat Log ──")

	cfg.ApplicationData.ChatLog.Enabled = promptBool(reader, "Persist chat to database", cfg.ApplicationData.ChatLog.Enabled)
	if cfg.ApplicationData.ChatLog.Enabled {
		cfg.ApplicationData.ChatLog.RetentionDays = promptInt(reader, "Chat retention (days)", cfg.ApplicationData.ChatLog.RetentionDays)
	}

	fmt.Println()
	fmt.Println("── Management API ──")

	cfg.ApplicationData.Security.APIPort = promptInt(reader, "REST API port", cfg.ApplicationData.Security.APIPort)
	cfg.ApplicationData.Security.AuthDisabled = promptBool(reader, "Disable API authentication (local use only)",
		cfg.ApplicationData.Security.AuthDisabled)
	if !cfg.ApplicationData.Security.AuthDisabled {
		cfg.ApplicationData.Security.APIToken = promptString(reader, "API bearer token", cfg.ApplicationData.Security.APIToken)
	}

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.ApplicationData.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.ApplicationData.MQTT.Enabled)
	if cfg.ApplicationData.MQTT.Enabled {
		cfg.ApplicationData.MQTT.BrokerURL = promptString(reader, "MQTT broker host", cfg.ApplicationData.MQTT.BrokerURL)
		cfg.ApplicationData.MQTT.Port = promptInt(reader, "MQTT broker port", cfg.ApplicationData.MQTT.Port)
	}

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  Starbridge will now start with your configuration.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
