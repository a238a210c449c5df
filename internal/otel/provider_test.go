package otel

import (
	"context"
	"testing"
	"time"

	"github.com/mrzor/oomguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	cfg, err := config.ParseOTELConfigFrom(map[string]string{})
	require.NoError(t, err)

	p, err := Setup(cfg, "test", nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_EnabledWithEndpoint(t *testing.T) {
	cfg, err := config.ParseOTELConfigFrom(map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4318",
		"OTEL_RESOURCE_ATTRIBUTES":    "deployment.environment=test",
	})
	require.NoError(t, err)

	p, err := Setup(cfg, "test", nil)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.Shutdown(ctx))
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("http://collector:4318"))
	assert.True(t, isURL("https://collector/v1/traces"))
	assert.False(t, isURL("collector:4318"))
	assert.Len(t, exporterOptions("collector:4318"), 3)
	assert.Len(t, exporterOptions("https://collector"), 2)
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
