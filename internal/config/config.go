// Package config handles configuration loading and management for hive.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/hive/internal/state"
)

// Config holds all configuration for the hive core.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Router    RouterConfig    `mapstructure:"router"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds OpenAI OAuth settings.
type OpenAIConfig struct {
	// AuthFile is the JSON credentials file written by the external
	// login command. Defaults to <config dir>/auth.json.
	AuthFile string `mapstructure:"auth_file"`
	// TokenURL is the OAuth token endpoint used for refresh.
	TokenURL string `mapstructure:"token_url"`
}

// StorageConfig holds database file locations.
type StorageConfig struct {
	// CallLogPath is the LLM call log database.
	CallLogPath string `mapstructure:"call_log_path"`
	// SwarmPath is the swarm tasks + messages database.
	SwarmPath string `mapstructure:"swarm_path"`
}

// RouterConfig holds strategy-selection tunables.
type RouterConfig struct {
	// MinSuccessRate filters stat candidates for cheapest/fastest.
	MinSuccessRate float64 `mapstructure:"min_success_rate"`
	// BalancedMinSuccessRate is the stricter balanced-strategy filter.
	BalancedMinSuccessRate float64 `mapstructure:"balanced_min_success_rate"`
	// MinSampleSize is the call count below which stats are ignored.
	MinSampleSize int `mapstructure:"min_sample_size"`
	// StatsHoursBack bounds the stats window.
	StatsHoursBack int `mapstructure:"stats_hours_back"`
}

// ExecutorConfig holds decomposed-execution tunables.
type ExecutorConfig struct {
	// MaxRetries is the number of additional attempts on transient errors.
	MaxRetries int `mapstructure:"max_retries"`
	// MaxContextChars caps the whole dependency-context prefix.
	MaxContextChars int `mapstructure:"max_context_chars"`
	// MaxDepResultChars caps each dependency result inside the prefix.
	MaxDepResultChars int `mapstructure:"max_dep_result_chars"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.hive.yaml in current directory or parent)
// 3. User config (~/.config/hive/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("openai.auth_file", filepath.Join(getUserConfigDir(), "auth.json"))
	v.SetDefault("openai.token_url", "https://auth.openai.com/oauth/token")

	v.SetDefault("storage.call_log_path", state.CallLogPath())
	v.SetDefault("storage.swarm_path", state.SwarmPath())

	v.SetDefault("router.min_success_rate", 0.8)
	v.SetDefault("router.balanced_min_success_rate", 0.9)
	v.SetDefault("router.min_sample_size", 3)
	v.SetDefault("router.stats_hours_back", 24)

	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.max_context_chars", 4000)
	v.SetDefault("executor.max_dep_result_chars", 1000)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			AuthFile: filepath.Join(getUserConfigDir(), "auth.json"),
			TokenURL: "https://auth.openai.com/oauth/token",
		},
		Storage: StorageConfig{
			CallLogPath: state.CallLogPath(),
			SwarmPath:   state.SwarmPath(),
		},
		Router: RouterConfig{
			MinSuccessRate:         0.8,
			BalancedMinSuccessRate: 0.9,
			MinSampleSize:          3,
			StatsHoursBack:         24,
		},
		Executor: ExecutorConfig{
			MaxRetries:        2,
			MaxContextChars:   4000,
			MaxDepResultChars: 1000,
		},
	}
}

// StatsWindow returns the stats lookback as a duration.
func (c *Config) StatsWindow() time.Duration {
	return time.Duration(c.Router.StatsHoursBack) * time.Hour
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// getUserConfigDir returns the XDG config directory for hive.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hive")
	}
	return filepath.Join(home, ".config", "hive")
}

// findProjectConfig searches for .hive.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hive.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
