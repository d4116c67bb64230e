package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Recap environment variables.
const EnvPrefix = "RECAP_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DBPath                string `yaml:"db_path"`
	AudioDir              string `yaml:"audio_dir"`
	FinalizeGrace         string `yaml:"finalize_grace"`
	IdleSessionTimeout    string `yaml:"idle_session_timeout"`
	ReapInterval          string `yaml:"reap_interval"`
	Transcriber           string `yaml:"transcriber"`
	WhisperModel          string `yaml:"whisper_model"`
	OpenAIModel           string `yaml:"openai_model"`
	TranscribeTimeout     string `yaml:"transcribe_timeout"`
	LogLevel              string `yaml:"log_level"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	OpenAIAPIKey   string `yaml:"-"`
	DeepgramAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/recap.db",
		AudioDir:              "data/audio",
		FinalizeGrace:         "10s",
		IdleSessionTimeout:    "30m",
		ReapInterval:          "1m",
		Transcriber:           "openai",
		WhisperModel:          "whisper-1",
		OpenAIModel:           "gpt-4o-mini",
		TranscribeTimeout:     "30s",
		LogLevel:              "info",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedFinalizeGrace returns FinalizeGrace as a time.Duration,
// falling back to 10s if the value is invalid.
func (c *Config) ParsedFinalizeGrace() time.Duration {
	return parseDurationOr(c.FinalizeGrace, 10*time.Second)
}

// ParsedIdleSessionTimeout returns IdleSessionTimeout as a time.Duration,
// falling back to 30m if the value is invalid.
func (c *Config) ParsedIdleSessionTimeout() time.Duration {
	return parseDurationOr(c.IdleSessionTimeout, 30*time.Minute)
}

// ParsedReapInterval returns ReapInterval as a time.Duration,
// falling back to 1m if the value is invalid.
func (c *Config) ParsedReapInterval() time.Duration {
	return parseDurationOr(c.ReapInterval, time.Minute)
}

// ParsedTranscribeTimeout returns TranscribeTimeout as a time.Duration,
// falling back to 30s if the value is invalid.
func (c *Config) ParsedTranscribeTimeout() time.Duration {
	return parseDurationOr(c.TranscribeTimeout, 30*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "FINALIZE_GRACE"); v != "" {
		cfg.FinalizeGrace = v
	}
	if v := os.Getenv(EnvPrefix + "IDLE_SESSION_TIMEOUT"); v != "" {
		cfg.IdleSessionTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "REAP_INTERVAL"); v != "" {
		cfg.ReapInterval = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER"); v != "" {
		cfg.Transcriber = v
	}
	if v := os.Getenv(EnvPrefix + "WHISPER_MODEL"); v != "" {
		cfg.WhisperModel = v
	}
	if v := os.Getenv(EnvPrefix + "OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_TIMEOUT"); v != "" {
		cfg.TranscribeTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcriber {
	case "openai", "deepgram":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcriber %q — using openai.", cfg.Transcriber))
		cfg.Transcriber = "openai"
	}

	if cfg.Transcriber == "deepgram" && cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — chunk transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — transcription and summaries are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.FinalizeGrace); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid finalize_grace %q — using default 10s.", cfg.FinalizeGrace))
	}
	if _, err := time.ParseDuration(cfg.IdleSessionTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid idle_session_timeout %q — using default 30m.", cfg.IdleSessionTimeout))
	}

	return warnings
}
