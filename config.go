package ctrace

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables read by
// LoadConfig and LoadConfigFromEnv, e.g. CTRACE_SERVICE_NAME.
const EnvPrefix = "ctrace"

// Output, id format and logger names accepted by Config.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"

	IDFormatHex  = "hex"
	IDFormatUUID = "uuid"

	LoggerStream = "stream"
	LoggerZap    = "zap"
)

// Config is the file and environment form of the tracer options.
type Config struct {
	// ServiceName is reported on every span. Required.
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	// SingleEventOutput reports each span once, at finish.
	SingleEventOutput bool `yaml:"single_event_output" envconfig:"SINGLE_EVENT_OUTPUT"`
	// Output is stdout, stderr or a file path opened for append.
	Output string `yaml:"output" envconfig:"OUTPUT"`
	// IDFormat is hex (16 characters) or uuid (32 characters).
	IDFormat string `yaml:"id_format" envconfig:"ID_FORMAT"`
	// Logger is stream for JSON lines or zap for structured zap entries.
	Logger string `yaml:"logger" envconfig:"LOGGER"`
	// LogLevel is the zap level of span entries and diagnostics.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// Diagnostics logs the tracer's own problems to stderr.
	Diagnostics bool `yaml:"diagnostics" envconfig:"DIAGNOSTICS"`

	TraceIDInjectHeaders  []string `yaml:"trace_id_inject_headers" envconfig:"TRACE_ID_INJECT_HEADERS"`
	SpanIDInjectHeaders   []string `yaml:"span_id_inject_headers" envconfig:"SPAN_ID_INJECT_HEADERS"`
	TraceIDExtractHeaders []string `yaml:"trace_id_extract_headers" envconfig:"TRACE_ID_EXTRACT_HEADERS"`
	SpanIDExtractHeaders  []string `yaml:"span_id_extract_headers" envconfig:"SPAN_ID_EXTRACT_HEADERS"`
}

// LoadConfig loads configuration from a YAML file, then applies defaults
// and environment overrides, and validates the result.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply CTRACE_* environment variable overrides
// 4. Validate final configuration
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return finishConfig(&cfg)
}

// LoadConfigFromEnv builds a configuration from defaults and CTRACE_*
// environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	return finishConfig(&Config{})
}

func finishConfig(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Output == "" {
		c.Output = OutputStdout
	}
	if c.IDFormat == "" {
		c.IDFormat = IDFormatHex
	}
	if c.Logger == "" {
		c.Logger = LoggerStream
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return ErrMissingServiceName
	}
	switch c.IDFormat {
	case IDFormatHex, IDFormatUUID:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIDFormat, c.IDFormat)
	}
	switch c.Logger {
	case LoggerStream, LoggerZap:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogger, c.Logger)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: empty", ErrUnknownOutput)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// NewFromConfig validates cfg and builds a tracer from it. opts are applied
// after the configured ones, so they can add a clock, metrics or override
// any setting.
func NewFromConfig(cfg *Config, opts ...Option) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(cfg.LogLevel)

	base := []Option{
		WithServiceName(cfg.ServiceName),
		WithSingleEventOutput(cfg.SingleEventOutput),
		WithTraceIDInjectHeaders(cfg.TraceIDInjectHeaders...),
		WithSpanIDInjectHeaders(cfg.SpanIDInjectHeaders...),
	}
	if cfg.TraceIDExtractHeaders != nil {
		base = append(base, WithTraceIDExtractHeaders(cfg.TraceIDExtractHeaders...))
	}
	if cfg.SpanIDExtractHeaders != nil {
		base = append(base, WithSpanIDExtractHeaders(cfg.SpanIDExtractHeaders...))
	}
	if cfg.IDFormat == IDFormatUUID {
		base = append(base, WithIDGenerator(UUIDGenerator{}))
	}

	var closer io.Closer
	switch cfg.Logger {
	case LoggerZap:
		zl, err := newZap(level, cfg.Output)
		if err != nil {
			return nil, err
		}
		base = append(base, WithLogger(NewZapLogger(zl, level)))
	default:
		w, c, err := openOutput(cfg.Output)
		if err != nil {
			return nil, err
		}
		closer = c
		base = append(base, WithWriter(w))
	}

	if cfg.Diagnostics {
		diag, err := newZap(level, OutputStderr)
		if err != nil {
			return nil, err
		}
		base = append(base, WithDiagnostics(diag))
	}

	t := New(append(base, opts...)...)
	t.closer = closer
	return t, nil
}

// openOutput resolves a stream name or opens a file for append. The closer
// is nil for the standard streams.
func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case OutputStdout:
		return os.Stdout, nil, nil
	case OutputStderr:
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %w", ErrUnknownOutput, output, err)
	}
	return f, f, nil
}

func newZap(level zapcore.Level, output string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{OutputStderr}
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownOutput, output, err)
	}
	return l, nil
}
