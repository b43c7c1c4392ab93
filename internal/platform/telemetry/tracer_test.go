package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"loyalgate/internal/platform/config"
	"loyalgate/internal/platform/logger"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{Enabled: false}, nil, logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Init(config.TelemetryConfig{Enabled: true, ServiceName: "loyalgate-test"}, &buf, logger.Discard())
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "admission.authenticate")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "admission.authenticate")
}
