package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "/etc/oom_whitelist", cfg.ExemptionsPath)
	assert.Equal(t, "/tmp/shim_forks.log", cfg.PIDLogPath)
	assert.Equal(t, "/tmp/shim_forks_wl.log", cfg.DecisionLogPath)
	assert.Equal(t, "/proc", cfg.ProcRoot)
	assert.Equal(t, -1000, cfg.ProtectedScore)
	assert.Equal(t, 1000, cfg.MarkedScore)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.CustomAttributes())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"OOMGUARD_EXEMPTIONS":      "/srv/oom/exempt",
		"OOMGUARD_PROC_ROOT":       "/host/proc",
		"OOMGUARD_PROTECTED_SCORE": "-500",
		"OOMGUARD_MARKED_SCORE":    "800",
		"OOMGUARD_LOG_LEVEL":       "debug",
		"OOMGUARD_ATTRIBUTES":      `first=args[0];exe=basename`,
	})
	require.NoError(t, err)

	assert.Equal(t, "/srv/oom/exempt", cfg.ExemptionsPath)
	assert.Equal(t, "/host/proc", cfg.ProcRoot)
	assert.Equal(t, -500, cfg.ProtectedScore)
	assert.Equal(t, 800, cfg.MarkedScore)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.CustomAttributes(), 2)
	assert.Equal(t, CustomAttribute{Name: "exe", Expression: "basename"}, cfg.CustomAttributes()[1])
}

func TestLoadFrom_InvalidScore(t *testing.T) {
	_, err := LoadFrom(map[string]string{"OOMGUARD_MARKED_SCORE": "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadFrom_InvalidAttributes(t *testing.T) {
	_, err := LoadFrom(map[string]string{"OOMGUARD_ATTRIBUTES": "no_equals"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OOMGUARD_ATTRIBUTES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "protected below range", mutate: func(c *Config) { c.ProtectedScore = -1001 }, wantErr: "protected score -1001 out of range"},
		{name: "marked above range", mutate: func(c *Config) { c.MarkedScore = 1001 }, wantErr: "marked score 1001 out of range"},
		{name: "empty exemption path", mutate: func(c *Config) { c.ExemptionsPath = "" }, wantErr: "path cannot be empty"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "chatty" }, wantErr: "invalid log level"},
		{name: "bounds are inclusive", mutate: func(c *Config) { c.ProtectedScore, c.MarkedScore = MinScore, MaxScore }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(map[string]string{})
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddAttribute(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"OOMGUARD_ATTRIBUTES": "a=1"})
	require.NoError(t, err)

	require.NoError(t, cfg.AddAttribute("  name  =  value  "))
	require.Len(t, cfg.CustomAttributes(), 2)
	assert.Equal(t, CustomAttribute{Name: "name", Expression: "value"}, cfg.CustomAttributes()[1])

	err = cfg.AddAttribute("=x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name cannot be empty")
}

func TestParseAttributeString_Valid(t *testing.T) {
	attrs, err := ParseAttributeString(`foo=bar;baz=args[1];cmd=cmdline`)

	require.NoError(t, err)
	require.Len(t, attrs, 3)
	assert.Equal(t, "foo", attrs[0].Name)
	assert.Equal(t, "bar", attrs[0].Expression)
	assert.Equal(t, "baz", attrs[1].Name)
	assert.Equal(t, "args[1]", attrs[1].Expression)
	assert.Equal(t, "cmd", attrs[2].Name)
	assert.Equal(t, "cmdline", attrs[2].Expression)
}

func TestParseAttributeString_Empty(t *testing.T) {
	attrs, err := ParseAttributeString("")
	require.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestParseAttributeString_InvalidFormat(t *testing.T) {
	_, err := ParseAttributeString("invalid_no_equals")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid attribute format")
	assert.Contains(t, err.Error(), "NAME=EXPR")
}

func TestParseAttributeString_EmptyName(t *testing.T) {
	_, err := ParseAttributeString("=value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name cannot be empty")
}

func TestParseAttributeString_EmptyExpression(t *testing.T) {
	_, err := ParseAttributeString("name=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expression cannot be empty")
}

func TestParseAttributeString_ExpressionWithEquals(t *testing.T) {
	attrs, err := ParseAttributeString(`is_sh=basename == "sh"`)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, `basename == "sh"`, attrs[0].Expression)
}

func TestParseAttributeString_TrailingSemicolon(t *testing.T) {
	attrs, err := ParseAttributeString("  foo  =  bar  ;  baz  =  qux  ;")

	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "foo", attrs[0].Name)
	assert.Equal(t, "qux", attrs[1].Expression)
}
