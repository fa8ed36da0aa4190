// Package config loads the termpilot configuration file and exposes it as an
// immutable Settings snapshot. The snapshot is taken once at startup and
// handed to the orchestrator at construction; no component re-reads
// configuration mid-task.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the immutable configuration snapshot for one process run.
type Settings struct {
	// Planning limits
	MaxSteps  int `mapstructure:"max_steps"`
	MinSteps  int `mapstructure:"min_steps"`
	MaxPhases int `mapstructure:"max_phases"`
	MinPhases int `mapstructure:"min_phases"`

	// Execution
	MaxRetries          int  `mapstructure:"max_retries"`
	TimeoutSeconds      int  `mapstructure:"timeout_seconds"`
	MaxParallelCommands int  `mapstructure:"max_parallel_commands"`
	AutoRun             bool `mapstructure:"auto_run"`

	// Clarification policy
	QuestionProbability float64 `mapstructure:"question_probability"`

	// Context / persistence
	MaxHistory  int    `mapstructure:"max_history"`
	HistoryFile string `mapstructure:"history_file"`

	// Oracle endpoint
	BaseURL               string `mapstructure:"base_url"`
	Model                 string `mapstructure:"model"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`

	// Plugins
	PluginDir string `mapstructure:"plugin_dir"`
}

// Timeout returns the per-command wall-clock timeout.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-oracle-call timeout.
func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Load reads config.yaml from ~/.termpilot or the working directory, applies
// TERMPILOT_* environment overrides, and validates the result.
func Load() (Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".termpilot"))
	}
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("TERMPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env cover the full surface.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}

	normalize(&s)
	if err := validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_steps", 10)
	v.SetDefault("min_steps", 1)
	v.SetDefault("max_phases", 3)
	v.SetDefault("min_phases", 1)
	v.SetDefault("max_retries", 3)
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("max_parallel_commands", 1)
	v.SetDefault("auto_run", false)
	v.SetDefault("question_probability", 0.1)
	v.SetDefault("max_history", 100)
	v.SetDefault("history_file", "~/.termpilot/command_history.json")
	v.SetDefault("base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("model", "gemini-2.0-flash")
	v.SetDefault("request_timeout_seconds", 60)
	v.SetDefault("plugin_dir", "~/.termpilot/plugins")
}

func normalize(s *Settings) {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.Model = strings.TrimSpace(s.Model)
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.HistoryFile = expandHome(strings.TrimSpace(s.HistoryFile))
	s.PluginDir = expandHome(strings.TrimSpace(s.PluginDir))

	if s.MaxParallelCommands <= 0 {
		s.MaxParallelCommands = 1
	}
	if s.RequestTimeoutSeconds <= 0 {
		s.RequestTimeoutSeconds = 60
	}
	if s.QuestionProbability < 0 {
		s.QuestionProbability = 0
	}
	if s.QuestionProbability > 1 {
		s.QuestionProbability = 1
	}
}

func validate(s Settings) error {
	if s.MinSteps < 1 {
		return fmt.Errorf("min_steps must be at least 1, got %d", s.MinSteps)
	}
	if s.MaxSteps < s.MinSteps {
		return fmt.Errorf("max_steps (%d) must be >= min_steps (%d)", s.MaxSteps, s.MinSteps)
	}
	if s.MinPhases < 1 || s.MaxPhases < s.MinPhases {
		return fmt.Errorf("phase limits invalid: min=%d max=%d", s.MinPhases, s.MaxPhases)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", s.MaxRetries)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", s.TimeoutSeconds)
	}
	if s.MaxHistory < 1 {
		return fmt.Errorf("max_history must be at least 1, got %d", s.MaxHistory)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
