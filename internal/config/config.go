// Package config loads reactor settings from an optional CUE file and the
// environment.
//
// Precedence, lowest first: schema defaults, the CUE file, REACTOR_*
// environment variables. The CUE schema is closed, so a misspelled field
// in the file is an error rather than a silently ignored key.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"

	"github.com/roach88/reactor/internal/reactor"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override, e.g. REACTOR_JOURNAL_PATH.
const EnvPrefix = "REACTOR_"

// Config holds the settings shared by the CLI and embedding programs.
type Config struct {
	Name         string        `json:"name" env:"NAME"`
	PrimeTimeout time.Duration `json:"-" env:"PRIME_TIMEOUT"`

	Journal JournalConfig `json:"journal" envPrefix:"JOURNAL_"`
	Metrics MetricsConfig `json:"metrics" envPrefix:"METRICS_"`
	Log     LogConfig     `json:"log" envPrefix:"LOG_"`
}

// JournalConfig controls commit recording.
type JournalConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Path    string `json:"path" env:"PATH"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	Namespace string `json:"namespace" env:"NAMESPACE"`
}

// LogConfig controls the slog handler built by Logger.
type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
}

// fileConfig mirrors the CUE field names. prime_timeout stays a string
// until it is parsed.
type fileConfig struct {
	Name         string        `json:"name"`
	PrimeTimeout string        `json:"prime_timeout"`
	Journal      JournalConfig `json:"journal"`
	Metrics      MetricsConfig `json:"metrics"`
	Log          LogConfig     `json:"log"`
}

// Error reports an invalid configuration source.
type Error struct {
	Source string // file path, "env" or "schema"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps an *Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := fromCUE("", nil)
	if err != nil {
		// The embedded schema is compiled into the binary.
		panic(err)
	}
	return cfg
}

// Load reads the CUE file at path (skipped when path is empty) and applies
// environment overrides.
func Load(path string) (Config, error) {
	var src []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Source: path, Err: err}
		}
		src = data
	}

	cfg, err := fromCUE(path, src)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.check(); err != nil {
		return Config{}, &Error{Source: "env", Err: fmt.Errorf("%s* overrides: %w", EnvPrefix, err)}
	}
	return cfg, nil
}

// Validate checks a CUE file against the schema without touching the
// environment.
func Validate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Source: path, Err: err}
	}
	_, err = fromCUE(path, data)
	return err
}

// definition compiles the embedded schema and returns #Config.
func definition(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, &Error{Source: "schema", Err: err}
	}
	return schema.LookupPath(cue.ParsePath("#Config")), nil
}

func fromCUE(path string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	v, err := definition(ctx)
	if err != nil {
		return Config{}, err
	}

	if src != nil {
		user := ctx.CompileBytes(src, cue.Filename(path))
		if err := user.Err(); err != nil {
			return Config{}, &Error{Source: path, Err: formatCUEError(err)}
		}
		v = v.Unify(user)
	}
	if err := v.Validate(); err != nil {
		return Config{}, &Error{Source: sourceName(path), Err: formatCUEError(err)}
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return Config{}, &Error{Source: sourceName(path), Err: formatCUEError(err)}
	}

	d, err := parseTimeout(fc.PrimeTimeout)
	if err != nil {
		return Config{}, &Error{Source: sourceName(path), Err: err}
	}
	return Config{
		Name:         fc.Name,
		PrimeTimeout: d,
		Journal:      fc.Journal,
		Metrics:      fc.Metrics,
		Log:          fc.Log,
	}, nil
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("prime_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("prime_timeout must be positive, got %s", s)
	}
	return d, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return &Error{Source: "env", Err: err}
	}
	return nil
}

// check runs c, with every override applied, back through #Config.
func (c Config) check() error {
	if c.PrimeTimeout <= 0 {
		return fmt.Errorf("prime_timeout must be positive, got %s", c.PrimeTimeout)
	}

	ctx := cuecontext.New()
	def, err := definition(ctx)
	if err != nil {
		return err
	}
	v := def.Unify(ctx.Encode(fileConfig{
		Name:         c.Name,
		PrimeTimeout: c.PrimeTimeout.String(),
		Journal:      c.Journal,
		Metrics:      c.Metrics,
		Log:          c.Log,
	}))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

func sourceName(path string) string {
	if path == "" {
		return "schema"
	}
	return path
}

// formatCUEError flattens a CUE error list into one message with positions.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msgs := make([]error, 0, len(errs))
	for _, e := range errs {
		msg := cueerrors.Details(e, nil)
		if pos := e.Position(); pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), e.Error())
		}
		msgs = append(msgs, errors.New(msg))
	}
	return errors.Join(msgs...)
}

// Options converts the config into reactor options. m may be nil. An empty
// Name leaves the reactor's own name in place.
func (c Config) Options(m *reactor.Metrics) []reactor.Option {
	opts := []reactor.Option{reactor.WithPrimeTimeout(c.PrimeTimeout)}
	if c.Name != "" {
		opts = append(opts, reactor.WithName(c.Name))
	}
	if c.Metrics.Enabled && m != nil {
		opts = append(opts, reactor.WithMetrics(m))
	}
	return opts
}

// Level returns the slog level named by Log.Level.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger builds the slog logger described by Log, writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
