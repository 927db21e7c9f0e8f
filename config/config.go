// Package config loads settings from an optional file and MINUTES_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	CertFile string `mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `mapstructure:"key_file" validate:"required_with=CertFile"`
}

type CaptureConfig struct {
	MicrophoneDevice string        `mapstructure:"microphone_device"`
	SystemDevice     string        `mapstructure:"system_device"`
	Tick             time.Duration `mapstructure:"tick" validate:"gt=0"`
}

type TranscriptionConfig struct {
	URL      string        `mapstructure:"url" validate:"required,url"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type SummarizationConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Model   string        `mapstructure:"model" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type PipelineConfig struct {
	OverlapPolicy string `mapstructure:"overlap_policy" validate:"oneof=allow reject queue"`
	RecentLimit   int    `mapstructure:"recent_limit" validate:"gte=1"`
}

type NotificationsConfig struct {
	Desktop bool `mapstructure:"desktop"`
}

// Config is the application configuration.
type Config struct {
	DataDir      string `mapstructure:"data_dir" validate:"required"`
	DocumentsDir string `mapstructure:"documents_dir"`
	DatabasePath string `mapstructure:"database_path"`
	InboxDir     string `mapstructure:"inbox_dir"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile      string `mapstructure:"log_file"`

	HTTP          HTTPConfig          `mapstructure:"http"`
	Capture       CaptureConfig       `mapstructure:"capture"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Summarization SummarizationConfig `mapstructure:"summarization"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// InitConfig prepares a viper instance. path may be empty, in which case
// MINUTES_CONFIG or config.yaml in the data directory is used if present.
func InitConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("MINUTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefault(v)

	if path == "" {
		path = os.Getenv("MINUTES_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

func setDefault(v *viper.Viper) {
	dataDir := ".minutes"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".minutes")
	}

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("documents_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("inbox_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetDefault("http.addr", "127.0.0.1:8765")
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")

	v.SetDefault("capture.microphone_device", "")
	v.SetDefault("capture.system_device", "monitor")
	v.SetDefault("capture.tick", time.Second)

	v.SetDefault("transcription.url", "http://127.0.0.1:8080")
	v.SetDefault("transcription.language", "")
	v.SetDefault("transcription.timeout", 10*time.Minute)

	v.SetDefault("summarization.url", "http://127.0.0.1:11434")
	v.SetDefault("summarization.model", "llama3.2")
	v.SetDefault("summarization.timeout", 5*time.Minute)

	v.SetDefault("pipeline.overlap_policy", "allow")
	v.SetDefault("pipeline.recent_limit", 5)

	v.SetDefault("notifications.desktop", true)
}

// GetApplicationConfig unmarshals and validates the configuration.
func GetApplicationConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = filepath.Join(cfg.DataDir, "recordings")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "minutes.sqlite")
	}
	if cfg.InboxDir == "" {
		cfg.InboxDir = filepath.Join(cfg.DataDir, "inbox")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Pipeline.OverlapPolicy = strings.ToLower(cfg.Pipeline.OverlapPolicy)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads, decodes and validates the configuration in one step.
func Load(path string) (*Config, error) {
	v, err := InitConfig(path)
	if err != nil {
		return nil, err
	}
	return GetApplicationConfig(v)
}
