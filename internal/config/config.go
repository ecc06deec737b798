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
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// ASRConfig selects and parameterizes the recognition backend.
type ASRConfig struct {
	// Mode is one of npu (the on-device engine), exec (external command),
	// or mock.
	Mode       string `yaml:"mode"`
	ModelType  string `yaml:"model_type"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type StoreConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	ASR         ASRConfig       `yaml:"asr"`
	Transcripts StoreConfig     `yaml:"transcripts"`
}

func Default() Config {
	return Config{
		RuntimeName: "axasr",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		ASR: ASRConfig{
			Mode:       "npu",
			ModelType:  "base",
			ModelPath:  "./models",
			Language:   "auto",
			SampleRate: 16000,
			Channels:   1,
		},
		Transcripts: StoreConfig{
			Enabled:       true,
			Path:          "./data/transcripts.db",
			RetentionDays: 30,
			MaxSessions:   10000,
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
	overrideString(&cfg.RuntimeName, "AXASR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "AXASR_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "AXASR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "AXASR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "AXASR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "AXASR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "AXASR_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "AXASR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "AXASR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "AXASR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "AXASR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "AXASR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "AXASR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "AXASR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "AXASR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "AXASR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.ASR.Mode, "AXASR_ASR_MODE")
	overrideString(&cfg.ASR.ModelType, "AXASR_ASR_MODEL_TYPE")
	overrideString(&cfg.ASR.ModelPath, "AXASR_ASR_MODEL_PATH")
	overrideString(&cfg.ASR.Language, "AXASR_ASR_LANGUAGE")
	overrideString(&cfg.ASR.Command, "AXASR_ASR_COMMAND")
	overrideInt(&cfg.ASR.SampleRate, "AXASR_ASR_SAMPLE_RATE")
	overrideInt(&cfg.ASR.Channels, "AXASR_ASR_CHANNELS")
	overrideBool(&cfg.Transcripts.Enabled, "AXASR_TRANSCRIPTS_ENABLED")
	overrideString(&cfg.Transcripts.Path, "AXASR_TRANSCRIPTS_PATH")
	overrideInt(&cfg.Transcripts.RetentionDays, "AXASR_TRANSCRIPTS_RETENTION_DAYS")
	overrideInt(&cfg.Transcripts.MaxSessions, "AXASR_TRANSCRIPTS_MAX_SESSIONS")
	overrideBool(&cfg.Transcripts.VacuumOnStart, "AXASR_TRANSCRIPTS_VACUUM_ON_START")
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
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.ASR.Mode {
	case "npu", "exec", "mock":
	default:
		return errors.New("asr.mode must be one of npu|exec|mock")
	}
	if cfg.ASR.Mode == "npu" {
		if cfg.ASR.ModelType == "" || cfg.ASR.ModelPath == "" {
			return errors.New("asr.model_type and asr.model_path must be set when mode=npu")
		}
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	if cfg.ASR.SampleRate <= 0 {
		return errors.New("asr.sample_rate must be positive")
	}
	if cfg.ASR.Channels != 1 {
		return errors.New("asr.channels must be 1 (engine input is mono)")
	}
	if cfg.Transcripts.Enabled {
		if cfg.Transcripts.Path == "" {
			return errors.New("transcripts.path must not be empty when enabled")
		}
		if cfg.Transcripts.RetentionDays < 0 {
			return errors.New("transcripts.retention_days must be >= 0")
		}
	}
	return nil
}
