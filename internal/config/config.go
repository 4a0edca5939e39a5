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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	Node        NodeConfig       `yaml:"node"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Documents   DocumentsConfig  `yaml:"documents"`
	Capture     CaptureConfig    `yaml:"capture"`
	Recorder    RecorderConfig   `yaml:"recorder"`
	STT         STTConfig        `yaml:"stt"`
	Compose     ComposeConfig    `yaml:"compose"`
	Names       NamesConfig      `yaml:"names"`
	Messaging   MessagingConfig  `yaml:"messaging"`
}

// NodeConfig identifies this scribe node to its peers on the bus.
type NodeConfig struct {
	ID                  string `yaml:"id"`
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int    `yaml:"heartbeat_timeout_ms"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// CaptureConfig selects where microphone PCM comes from.
type CaptureConfig struct {
	Mode            string `yaml:"mode"` // ffmpeg, bus
	Command         string `yaml:"command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	Stream          string `yaml:"stream"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	WakeLockCommand string `yaml:"wake_lock_command"`
}

type RecorderConfig struct {
	Mode               string  `yaml:"mode"` // auto, streaming, chunked
	Language           string  `yaml:"language"`
	MeterIntervalMS    int     `yaml:"meter_interval_ms"`
	MeterWindow        int     `yaml:"meter_window"`
	ActivityThreshold  float64 `yaml:"activity_threshold"`
	SilenceCeilingMS   int     `yaml:"silence_ceiling_ms"`
	SilenceCheckMS     int     `yaml:"silence_check_ms"`
	WatchdogIntervalMS int     `yaml:"watchdog_interval_ms"`
	StallTimeoutMS     int     `yaml:"stall_timeout_ms"`
	RestartBaseMS      int     `yaml:"restart_base_ms"`
	RestartStepMS      int     `yaml:"restart_step_ms"`
	RestartMaxMS       int     `yaml:"restart_max_ms"`
	SilenceRestartMS   int     `yaml:"silence_restart_ms"`
	BurstWindowMS      int     `yaml:"burst_window_ms"`
	BurstLimit         int     `yaml:"burst_limit"`
	ChunkDurationMS    int     `yaml:"chunk_duration_ms"`
	MaxDurationMS      int     `yaml:"max_duration_ms"`
	ChunkRetries       int     `yaml:"chunk_retries"`
	DispatchTimeoutMS  int     `yaml:"dispatch_timeout_ms"`
}

type STTConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Mode            string   `yaml:"mode"`        // mock, exec, http, google, bus
	StreamMode      string   `yaml:"stream_mode"` // none, mock, google
	Command         string   `yaml:"command"`
	ModelPath       string   `yaml:"model_path"`
	Endpoint        string   `yaml:"endpoint"`
	APIKey          string   `yaml:"api_key"`
	CredentialsFile string   `yaml:"credentials_file"`
	Language        string   `yaml:"language"`
	Model           string   `yaml:"model"`
	Encoding        string   `yaml:"encoding"`
	Phrases         []string `yaml:"phrases"`
	Boost           float64  `yaml:"boost"`
	Serve           bool     `yaml:"serve"`
	TimeoutMS       int      `yaml:"timeout_ms"`
}

type ComposeConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Mode            string   `yaml:"mode"` // mock, ollama, exec, gemini, openai
	Endpoint        string   `yaml:"endpoint"`
	Command         string   `yaml:"command"`
	APIKey          string   `yaml:"api_key"`
	Models          []string `yaml:"models"`
	MaxTokens       int      `yaml:"max_tokens"`
	Temperature     float64  `yaml:"temperature"`
	DefaultStyle    string   `yaml:"default_style"`
	BreakerFailures int      `yaml:"breaker_failures"`
	BreakerResetMS  int      `yaml:"breaker_reset_ms"`
	Serve           bool     `yaml:"serve"`
}

type NamesConfig struct {
	List      []string `yaml:"list"`
	Threshold float64  `yaml:"threshold"`
}

type MessagingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-scribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Node: NodeConfig{
			HeartbeatIntervalMS: 2000,
			HeartbeatTimeoutMS:  6000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/scribe-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Documents: DocumentsConfig{
			Path: "./data/scribe-documents.db",
		},
		Capture: CaptureConfig{
			Mode:        "ffmpeg",
			Command:     "ffmpeg",
			InputFormat: "pulse",
			InputDevice: "default",
			Stream:      "mic",
			SampleRate:  16000,
			Channels:    1,
		},
		Recorder: RecorderConfig{
			Mode:               "auto",
			Language:           "ko-KR",
			MeterIntervalMS:    400,
			MeterWindow:        2048,
			ActivityThreshold:  0.008,
			SilenceCeilingMS:   60000,
			SilenceCheckMS:     1000,
			WatchdogIntervalMS: 7000,
			StallTimeoutMS:     20000,
			RestartBaseMS:      200,
			RestartStepMS:      400,
			RestartMaxMS:       3000,
			SilenceRestartMS:   250,
			BurstWindowMS:      300,
			BurstLimit:         5,
			ChunkDurationMS:    15000,
			MaxDurationMS:      600000,
			ChunkRetries:       1,
			DispatchTimeoutMS:  45000,
		},
		STT: STTConfig{
			Enabled:    true,
			Mode:       "mock",
			StreamMode: "none",
			Endpoint:   "http://localhost:5000/api/stt/recognize",
			Language:   "ko-KR",
			Model:      "latest_long",
			Encoding:   "LINEAR16",
			Boost:      10,
			TimeoutMS:  30000,
		},
		Compose: ComposeConfig{
			Enabled:         false,
			Mode:            "mock",
			Models:          []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-1.0-pro"},
			MaxTokens:       2048,
			Temperature:     0.3,
			DefaultStyle:    "summary",
			BreakerFailures: 3,
			BreakerResetMS:  30000,
		},
		Names: NamesConfig{
			Threshold: 0.8,
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
	applyKeyFallbacks(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.Node.ID, "LOQA_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatIntervalMS, "LOQA_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeoutMS, "LOQA_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Documents.Path, "LOQA_DOCUMENTS_PATH")
	overrideString(&cfg.Capture.Mode, "LOQA_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "LOQA_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.InputFormat, "LOQA_CAPTURE_INPUT_FORMAT")
	overrideString(&cfg.Capture.InputDevice, "LOQA_CAPTURE_INPUT_DEVICE")
	overrideString(&cfg.Capture.Stream, "LOQA_CAPTURE_STREAM")
	overrideInt(&cfg.Capture.SampleRate, "LOQA_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "LOQA_CAPTURE_CHANNELS")
	overrideString(&cfg.Capture.WakeLockCommand, "LOQA_CAPTURE_WAKE_LOCK_COMMAND")
	overrideString(&cfg.Recorder.Mode, "LOQA_RECORDER_MODE")
	overrideString(&cfg.Recorder.Language, "LOQA_RECORDER_LANGUAGE")
	overrideInt(&cfg.Recorder.MeterIntervalMS, "LOQA_RECORDER_METER_INTERVAL_MS")
	overrideInt(&cfg.Recorder.MeterWindow, "LOQA_RECORDER_METER_WINDOW")
	overrideFloat(&cfg.Recorder.ActivityThreshold, "LOQA_RECORDER_ACTIVITY_THRESHOLD")
	overrideInt(&cfg.Recorder.SilenceCeilingMS, "LOQA_RECORDER_SILENCE_CEILING_MS")
	overrideInt(&cfg.Recorder.SilenceCheckMS, "LOQA_RECORDER_SILENCE_CHECK_MS")
	overrideInt(&cfg.Recorder.WatchdogIntervalMS, "LOQA_RECORDER_WATCHDOG_INTERVAL_MS")
	overrideInt(&cfg.Recorder.StallTimeoutMS, "LOQA_RECORDER_STALL_TIMEOUT_MS")
	overrideInt(&cfg.Recorder.RestartBaseMS, "LOQA_RECORDER_RESTART_BASE_MS")
	overrideInt(&cfg.Recorder.RestartStepMS, "LOQA_RECORDER_RESTART_STEP_MS")
	overrideInt(&cfg.Recorder.RestartMaxMS, "LOQA_RECORDER_RESTART_MAX_MS")
	overrideInt(&cfg.Recorder.SilenceRestartMS, "LOQA_RECORDER_SILENCE_RESTART_MS")
	overrideInt(&cfg.Recorder.BurstWindowMS, "LOQA_RECORDER_BURST_WINDOW_MS")
	overrideInt(&cfg.Recorder.BurstLimit, "LOQA_RECORDER_BURST_LIMIT")
	overrideInt(&cfg.Recorder.ChunkDurationMS, "LOQA_RECORDER_CHUNK_DURATION_MS")
	overrideInt(&cfg.Recorder.MaxDurationMS, "LOQA_RECORDER_MAX_DURATION_MS")
	overrideInt(&cfg.Recorder.ChunkRetries, "LOQA_RECORDER_CHUNK_RETRIES")
	overrideInt(&cfg.Recorder.DispatchTimeoutMS, "LOQA_RECORDER_DISPATCH_TIMEOUT_MS")
	overrideBool(&cfg.STT.Enabled, "LOQA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.StreamMode, "LOQA_STT_STREAM_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Endpoint, "LOQA_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "LOQA_STT_API_KEY")
	overrideString(&cfg.STT.CredentialsFile, "LOQA_STT_CREDENTIALS_FILE")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideString(&cfg.STT.Model, "LOQA_STT_MODEL")
	overrideString(&cfg.STT.Encoding, "LOQA_STT_ENCODING")
	overrideStringSlice(&cfg.STT.Phrases, "LOQA_STT_PHRASES")
	overrideFloat(&cfg.STT.Boost, "LOQA_STT_BOOST")
	overrideBool(&cfg.STT.Serve, "LOQA_STT_SERVE")
	overrideInt(&cfg.STT.TimeoutMS, "LOQA_STT_TIMEOUT_MS")
	overrideBool(&cfg.Compose.Enabled, "LOQA_COMPOSE_ENABLED")
	overrideString(&cfg.Compose.Mode, "LOQA_COMPOSE_MODE")
	overrideString(&cfg.Compose.Endpoint, "LOQA_COMPOSE_ENDPOINT")
	overrideString(&cfg.Compose.Command, "LOQA_COMPOSE_COMMAND")
	overrideString(&cfg.Compose.APIKey, "LOQA_COMPOSE_API_KEY")
	overrideStringSlice(&cfg.Compose.Models, "LOQA_COMPOSE_MODELS")
	overrideInt(&cfg.Compose.MaxTokens, "LOQA_COMPOSE_MAX_TOKENS")
	overrideFloat(&cfg.Compose.Temperature, "LOQA_COMPOSE_TEMPERATURE")
	overrideString(&cfg.Compose.DefaultStyle, "LOQA_COMPOSE_DEFAULT_STYLE")
	overrideInt(&cfg.Compose.BreakerFailures, "LOQA_COMPOSE_BREAKER_FAILURES")
	overrideInt(&cfg.Compose.BreakerResetMS, "LOQA_COMPOSE_BREAKER_RESET_MS")
	overrideBool(&cfg.Compose.Serve, "LOQA_COMPOSE_SERVE")
	overrideStringSlice(&cfg.Names.List, "LOQA_NAMES_LIST")
	overrideFloat(&cfg.Names.Threshold, "LOQA_NAMES_THRESHOLD")
	overrideBool(&cfg.Messaging.Enabled, "LOQA_MESSAGING_ENABLED")
	overrideString(&cfg.Messaging.AccountSID, "LOQA_MESSAGING_ACCOUNT_SID")
	overrideString(&cfg.Messaging.AuthToken, "LOQA_MESSAGING_AUTH_TOKEN")
	overrideString(&cfg.Messaging.From, "LOQA_MESSAGING_FROM")
}

// applyKeyFallbacks lets a single GOOGLE_API_KEY serve both Google-backed
// providers when no dedicated key is configured.
func applyKeyFallbacks(cfg *Config) {
	google := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if google == "" {
		return
	}
	if cfg.Compose.APIKey == "" && cfg.Compose.Mode == "gemini" {
		cfg.Compose.APIKey = google
	}
	if cfg.STT.APIKey == "" && cfg.STT.Mode == "google" {
		cfg.STT.APIKey = google
	}
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.Node.HeartbeatIntervalMS <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeoutMS < cfg.Node.HeartbeatIntervalMS {
		return errors.New("node.heartbeat_timeout_ms must be >= node.heartbeat_interval_ms")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Documents.Path == "" {
		return errors.New("documents.path must not be empty")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if err := validateCapture(cfg.Capture); err != nil {
		return err
	}
	if err := validateRecorder(cfg.Recorder); err != nil {
		return err
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec", "http", "google", "bus":
		default:
			return errors.New("stt.mode must be one of mock|exec|http|google|bus")
		}
		switch cfg.STT.StreamMode {
		case "", "none", "mock", "google":
		default:
			return errors.New("stt.stream_mode must be one of none|mock|google")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.Mode == "http" && cfg.STT.Endpoint == "" {
			return errors.New("stt.endpoint must be set when mode=http")
		}
		if cfg.STT.Boost < 0 {
			return errors.New("stt.boost must be >= 0")
		}
	}
	if cfg.Compose.Enabled {
		switch cfg.Compose.Mode {
		case "mock", "ollama", "exec", "gemini", "openai":
		default:
			return errors.New("compose.mode must be one of mock|ollama|exec|gemini|openai")
		}
		if cfg.Compose.Mode == "exec" && cfg.Compose.Command == "" {
			return errors.New("compose.command must be set when mode=exec")
		}
		if (cfg.Compose.Mode == "gemini" || cfg.Compose.Mode == "openai") && cfg.Compose.APIKey == "" {
			return fmt.Errorf("compose.api_key must be set when mode=%s", cfg.Compose.Mode)
		}
		if len(cfg.Compose.Models) == 0 {
			return errors.New("compose.models must not be empty")
		}
		if cfg.Compose.MaxTokens < 0 {
			return errors.New("compose.max_tokens must be >= 0")
		}
	}
	if cfg.Names.Threshold <= 0 || cfg.Names.Threshold > 1 {
		return errors.New("names.threshold must be in (0, 1]")
	}
	if cfg.Messaging.Enabled {
		if cfg.Messaging.AccountSID == "" || cfg.Messaging.AuthToken == "" {
			return errors.New("messaging.account_sid and messaging.auth_token must be set when messaging is enabled")
		}
		if cfg.Messaging.From == "" {
			return errors.New("messaging.from must be set when messaging is enabled")
		}
	}
	return nil
}

func validateCapture(c CaptureConfig) error {
	switch c.Mode {
	case "ffmpeg":
		if c.Command == "" {
			return errors.New("capture.command must be set when mode=ffmpeg")
		}
	case "bus":
		if c.Stream == "" {
			return errors.New("capture.stream must be set when mode=bus")
		}
	default:
		return errors.New("capture.mode must be one of ffmpeg|bus")
	}
	if c.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if c.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	return nil
}

func validateRecorder(r RecorderConfig) error {
	switch r.Mode {
	case "auto", "streaming", "chunked":
	default:
		return errors.New("recorder.mode must be one of auto|streaming|chunked")
	}
	positive := map[string]int{
		"recorder.meter_interval_ms":    r.MeterIntervalMS,
		"recorder.meter_window":         r.MeterWindow,
		"recorder.silence_ceiling_ms":   r.SilenceCeilingMS,
		"recorder.silence_check_ms":     r.SilenceCheckMS,
		"recorder.watchdog_interval_ms": r.WatchdogIntervalMS,
		"recorder.stall_timeout_ms":     r.StallTimeoutMS,
		"recorder.restart_max_ms":       r.RestartMaxMS,
		"recorder.burst_window_ms":      r.BurstWindowMS,
		"recorder.chunk_duration_ms":    r.ChunkDurationMS,
		"recorder.max_duration_ms":      r.MaxDurationMS,
		"recorder.dispatch_timeout_ms":  r.DispatchTimeoutMS,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if r.RestartBaseMS < 0 || r.RestartStepMS < 0 || r.SilenceRestartMS < 0 {
		return errors.New("recorder restart delays must be >= 0")
	}
	if r.BurstLimit < 0 {
		return errors.New("recorder.burst_limit must be >= 0")
	}
	if r.ChunkRetries < 0 {
		return errors.New("recorder.chunk_retries must be >= 0")
	}
	if r.ActivityThreshold <= 0 || r.ActivityThreshold >= 1 {
		return errors.New("recorder.activity_threshold must be in (0, 1)")
	}
	if r.ChunkDurationMS > r.MaxDurationMS {
		return errors.New("recorder.chunk_duration_ms must not exceed recorder.max_duration_ms")
	}
	return nil
}
