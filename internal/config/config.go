// Package config holds oomguard's runtime configuration.
//
// Values come from OOMGUARD_* environment variables; the CLI overrides them
// with flags before calling Validate.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// Bounds of the kernel's oom_score_adj attribute.
const (
	MinScore = -1000
	MaxScore = 1000
)

// CustomAttribute is a NAME=EXPR pair evaluated against each scored process.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed configuration.
type Config struct {
	// ExemptionsPath is the administrator-maintained exemption list.
	ExemptionsPath string `env:"OOMGUARD_EXEMPTIONS" envDefault:"/etc/oom_whitelist"`
	// PIDLogPath records every PID seen.
	PIDLogPath string `env:"OOMGUARD_PID_LOG" envDefault:"/tmp/shim_forks.log"`
	// DecisionLogPath records every exemption check and its verdict.
	DecisionLogPath string `env:"OOMGUARD_DECISION_LOG" envDefault:"/tmp/shim_forks_wl.log"`
	// ProcRoot is where the proc filesystem is mounted.
	ProcRoot string `env:"OOMGUARD_PROC_ROOT" envDefault:"/proc"`
	// ProtectedScore is written for exempt processes.
	ProtectedScore int `env:"OOMGUARD_PROTECTED_SCORE" envDefault:"-1000"`
	// MarkedScore is written for every other process.
	MarkedScore int    `env:"OOMGUARD_MARKED_SCORE" envDefault:"1000"`
	LogLevel    string `env:"OOMGUARD_LOG_LEVEL" envDefault:"info"`
	// AttributeSpec is a ';'-separated list of NAME=EXPR custom attributes.
	AttributeSpec string `env:"OOMGUARD_ATTRIBUTES"`

	attributes []CustomAttribute
}

// Load parses the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the configuration from the given variables only.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	attrs, err := ParseAttributeString(cfg.AttributeSpec)
	if err != nil {
		return nil, fmt.Errorf("OOMGUARD_ATTRIBUTES: %w", err)
	}
	cfg.attributes = attrs

	return &cfg, nil
}

// CustomAttributes returns the configured attributes, environment first and
// flags after.
func (c *Config) CustomAttributes() []CustomAttribute {
	return c.attributes
}

// AddAttribute appends one NAME=EXPR attribute, as given to --attribute.
func (c *Config) AddAttribute(spec string) error {
	attr, err := parseAttribute(spec)
	if err != nil {
		return err
	}
	c.attributes = append(c.attributes, attr)
	return nil
}

// Validate checks the configuration for values the kernel or the store would reject.
func (c *Config) Validate() error {
	if c.ExemptionsPath == "" {
		return fmt.Errorf("exemption list path cannot be empty")
	}
	if err := checkScore("protected", c.ProtectedScore); err != nil {
		return err
	}
	if err := checkScore("marked", c.MarkedScore); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

func checkScore(name string, score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%s score %d out of range [%d, %d]", name, score, MinScore, MaxScore)
	}
	return nil
}

// ParseAttributeString parses a ';'-separated list of NAME=EXPR pairs.
// Empty segments are skipped.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		attr, err := parseAttribute(part)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseAttribute(spec string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(spec, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q, expected NAME=EXPR", spec)
	}

	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("attribute name cannot be empty in %q", spec)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("attribute expression cannot be empty in %q", spec)
	}

	return CustomAttribute{Name: name, Expression: expression}, nil
}
