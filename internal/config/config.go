package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	Audio   AudioConfig   `mapstructure:"audio"`
	Summary SummaryConfig `mapstructure:"summary"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	AI      AIConfig      `mapstructure:"ai"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Export  ExportConfig  `mapstructure:"export"`
}

type AudioConfig struct {
	SampleRate       int           `mapstructure:"sample_rate"`
	Channels         int           `mapstructure:"channels"`
	BufferDuration   time.Duration `mapstructure:"buffer_duration"`
	SilenceThreshold time.Duration `mapstructure:"silence_threshold"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	SaveDir          string        `mapstructure:"save_dir"`
}

type SummaryConfig struct {
	AutoSummarize bool          `mapstructure:"auto_summarize"`
	Interval      time.Duration `mapstructure:"interval"`
	Language      string        `mapstructure:"language"`
}

type WhisperConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type AIConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.buffer_duration", "15m")
	v.SetDefault("audio.silence_threshold", "2m")
	v.SetDefault("audio.flush_interval", "30s")

	v.SetDefault("summary.auto_summarize", true)
	v.SetDefault("summary.interval", "15m")
	v.SetDefault("summary.language", "en-US")

	v.SetDefault("whisper.timeout", "60s")
	v.SetDefault("whisper.max_retries", 3)

	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.temperature", 0.3)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "720h")

	v.SetDefault("export.dir", "exports")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
