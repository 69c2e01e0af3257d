package tracing_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dalemusser/cohorthub/internal/app/system/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Off(t *testing.T) {
	for _, name := range []string{"", tracing.ExporterOff} {
		tp, err := tracing.Setup(context.Background(), tracing.Config{Exporter: name})
		require.NoError(t, err)
		assert.Nil(t, tp)
		assert.NoError(t, tracing.Shutdown(context.Background(), tp))
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := tracing.Setup(context.Background(), tracing.Config{Exporter: "jaeger"})
	require.Error(t, err)
	assert.False(t, tracing.ValidExporter("jaeger"))
	assert.True(t, tracing.ValidExporter(tracing.ExporterStdout))
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := tracing.Setup(ctx, tracing.Config{ServiceName: "cohorthub", Exporter: tracing.ExporterStdout, Writer: &buf})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := otel.Tracer("tracing_test").Start(ctx, "approve application")
	assert.True(t, span.IsRecording())
	span.End()

	require.NoError(t, tracing.Shutdown(ctx, tp))
	out := buf.String()
	assert.True(t, strings.Contains(out, "approve application"), "exported output: %s", out)
	assert.True(t, strings.Contains(out, "cohorthub"))
}
