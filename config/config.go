// Package config loads client defaults for httpclient from layered
// sources. Later layers win:
//
//  1. built-in defaults
//  2. a YAML file or YAML bytes
//  3. environment variables prefixed with FLUENT_
//
// Environment keys map to config keys by dropping the prefix, lowercasing
// and turning "_" into ".": FLUENT_RETRY_ATTEMPTS sets retry.attempts.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "FLUENT_"

type loader struct {
	path      string
	yaml      []byte
	envPrefix string
}

// LoadOption customizes Load.
type LoadOption func(*loader)

// WithFile loads the YAML file at path. A missing file is an error.
func WithFile(path string) LoadOption {
	return func(l *loader) { l.path = path }
}

// WithYAML loads YAML from b, after any WithFile layer.
func WithYAML(b []byte) LoadOption {
	return func(l *loader) { l.yaml = b }
}

// WithEnvPrefix replaces DefaultEnvPrefix. An empty prefix disables the
// environment layer.
func WithEnvPrefix(prefix string) LoadOption {
	return func(l *loader) { l.envPrefix = prefix }
}

// Load reads and validates the configuration.
func Load(opts ...LoadOption) (*Config, error) {
	l := &loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if l.path != "" {
		if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.path, err)
		}
	}

	if len(l.yaml) > 0 {
		if err := k.Load(rawbytes.Provider(l.yaml), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	if l.envPrefix != "" {
		prefix := l.envPrefix
		if err := k.Load(env.Provider(".", env.Opt{
			Prefix: prefix,
			TransformFunc: func(key, value string) (string, any) {
				key = strings.ToLower(strings.TrimPrefix(key, prefix))
				return strings.ReplaceAll(key, "_", "."), value
			},
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		"timeout":                     "0s",
		"debug":                       false,
		"insecure":                    false,
		"curl":                        false,
		"retry.attempts":              1,
		"retry.delay":                 "0s",
		"retry.maxdelay":              "0s",
		"retry.strategy":              StrategyConstant,
		"ratelimit.rps":               0,
		"ratelimit.burst":             0,
		"breaker.enabled":             false,
		"breaker.consecutivefailures": 5,
		"breaker.timeout":             "10s",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError describes one invalid setting.
type FieldError struct {
	// Field is the config key path, e.g. "retry.attempts".
	Field string
	Rule  string
	Value any
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: failed %q (got %v)", fe.Field, fe.Rule, fe.Value))
	}
	return strings.Join(parts, "; ")
}

// Validate checks cfg against its validate tags.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, FieldError{
			Field: keyPath(fe.StructNamespace()),
			Rule:  fe.Tag(),
			Value: fe.Value(),
		})
	}
	return out
}

// keyPath turns "Config.Retry.Attempts" into "retry.attempts".
func keyPath(namespace string) string {
	_, path, _ := strings.Cut(namespace, ".")
	return strings.ToLower(path)
}
