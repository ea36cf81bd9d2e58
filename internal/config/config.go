package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind              string   `yaml:"bind"`
	Port              int      `yaml:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	RawResult         bool     `yaml:"raw_result"`
	ShutdownTimeoutMS int      `yaml:"shutdown_timeout_ms"`
}

type STTConfig struct {
	Engine         string `yaml:"engine"`
	ModelPath      string `yaml:"model_path"`
	Command        string `yaml:"command"`
	Language       string `yaml:"language"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	STT         STTConfig       `yaml:"stt"`
	History     HistoryConfig   `yaml:"history"`
	Bus         BusConfig       `yaml:"bus"`
}

func Default() Config {
	return Config{
		ServiceName: "scribed",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:              "0.0.0.0",
			Port:              5000,
			AllowedOrigins:    []string{"*"},
			MaxUploadBytes:    64 << 20,
			ShutdownTimeoutMS: 10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		STT: STTConfig{
			Engine:         "vosk",
			ModelPath:      "./models/vosk",
			SampleRate:     16000,
			Channels:       1,
			MaxConcurrency: 4,
		},
		History: HistoryConfig{
			Path:          "./data/scribed-history.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SCRIBED_SERVICE_NAME")
	overrideString(&cfg.Environment, "SCRIBED_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBED_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBED_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "SCRIBED_HTTP_ALLOWED_ORIGINS")
	overrideInt64(&cfg.HTTP.MaxUploadBytes, "SCRIBED_HTTP_MAX_UPLOAD_BYTES")
	overrideBool(&cfg.HTTP.RawResult, "SCRIBED_HTTP_RAW_RESULT")
	overrideInt(&cfg.HTTP.ShutdownTimeoutMS, "SCRIBED_HTTP_SHUTDOWN_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBED_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBED_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBED_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.STT.Engine, "SCRIBED_STT_ENGINE")
	overrideString(&cfg.STT.ModelPath, "SCRIBED_STT_MODEL_PATH")
	overrideString(&cfg.STT.Command, "SCRIBED_STT_COMMAND")
	overrideString(&cfg.STT.Language, "SCRIBED_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "SCRIBED_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "SCRIBED_STT_CHANNELS")
	overrideInt(&cfg.STT.MaxConcurrency, "SCRIBED_STT_MAX_CONCURRENCY")
	overrideString(&cfg.History.Path, "SCRIBED_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "SCRIBED_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "SCRIBED_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "SCRIBED_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "SCRIBED_HISTORY_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "SCRIBED_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBED_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBED_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBED_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBED_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBED_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBED_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBED_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBED_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		return errors.New("http.allowed_origins must not be empty")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return errors.New("http.max_upload_bytes must be positive")
	}
	switch cfg.STT.Engine {
	case "vosk", "exec", "mock":
	default:
		return errors.New("stt.engine must be one of vosk|exec|mock")
	}
	if cfg.STT.Engine == "vosk" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when engine=vosk")
	}
	if cfg.STT.Engine == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when engine=exec")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.Channels <= 0 {
		return errors.New("stt.channels must be positive")
	}
	if cfg.STT.MaxConcurrency <= 0 {
		return errors.New("stt.max_concurrency must be >= 1")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when retention is persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
