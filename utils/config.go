package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Backend   BackendConfig   `json:"backend"`
	Data      DataConfig      `json:"data"`
	Redaction RedactionConfig `json:"redaction"`
	Monitor   MonitorConfig   `json:"monitor"`
	LogPath   string          `json:"log_path" env:"ASSISTANT_LOG_PATH"`
}

// BackendConfig selects and configures the inference backend
type BackendConfig struct {
	Name         string  `json:"name" env:"ASSISTANT_BACKEND"` // "ollama" or "openai"
	APIKey       string  `json:"api_key" env:"ASSISTANT_API_KEY"`
	BaseURL      string  `json:"base_url" env:"ASSISTANT_BASE_URL"`
	DefaultModel string  `json:"default_model" env:"ASSISTANT_DEFAULT_MODEL"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath     string `json:"db_path" env:"ASSISTANT_DB_PATH"`
	MaxHistory int    `json:"max_history"`
}

// RedactionConfig carries user-registered detection patterns on top of
// the built-in categories. Keys are category names, values are regular
// expressions.
type RedactionConfig struct {
	CustomPatterns map[string]string `json:"custom_patterns,omitempty"`
}

// MonitorConfig sets the resource safety thresholds, in percent, and
// the telemetry sampling interval.
type MonitorConfig struct {
	CPUThreshold         float64 `json:"cpu_threshold"`
	MemoryThreshold      float64 `json:"memory_threshold"`
	GPUThreshold         float64 `json:"gpu_threshold"`
	TemperatureThreshold float64 `json:"temperature_threshold"`
	SampleIntervalSecs   int     `json:"sample_interval_secs"`
}

// LoadConfig loads configuration from file, then applies environment
// overrides (ASSISTANT_* variables win over the file).
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}
	if config.LogPath != "" {
		config.LogPath = expandPath(config.LogPath)
	}

	return &config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/default.json"
	}

	return filepath.Join(configDir, "secure-llm-assistant", "config.json")
}

// EnsureDefaultConfig creates a default config file if it doesn't exist
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	defaultConfig := &Config{
		Backend: BackendConfig{
			Name:         "ollama",
			BaseURL:      "http://localhost:11434",
			DefaultModel: "llama3.2",
			MaxTokens:    4096,
			Temperature:  0.7,
		},
		Data: DataConfig{
			DBPath:     "./data/assistant.db",
			MaxHistory: 1000,
		},
		Monitor: MonitorConfig{
			CPUThreshold:         85,
			MemoryThreshold:      90,
			GPUThreshold:         85,
			TemperatureThreshold: 80,
			SampleIntervalSecs:   5,
		},
	}

	if err := SaveConfig(configPath, defaultConfig); err != nil {
		return "", err
	}

	return configPath, nil
}
