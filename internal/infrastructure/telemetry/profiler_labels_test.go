package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithProfilingLabels(t *testing.T) {
	t.Run("runs fn without labels", func(t *testing.T) {
		called := false
		WithProfilingLabels(context.Background(), nil, func(ctx context.Context) {
			called = true
		})
		assert.True(t, called)
	})

	t.Run("attaches sanitized labels", func(t *testing.T) {
		long := strings.Repeat("r", 200)
		labels := map[string]string{
			ProfilingLabelMethod: "GET",
			ProfilingLabelRoute:  long,
			"":                   "ignored",
			"empty":              "",
		}

		var method, route string
		var emptyFound bool
		WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
			method, _ = pprof.Label(ctx, ProfilingLabelMethod)
			route, _ = pprof.Label(ctx, ProfilingLabelRoute)
			_, emptyFound = pprof.Label(ctx, "empty")
		})

		assert.Equal(t, "GET", method)
		assert.Len(t, route, maxLabelValueLength)
		assert.False(t, emptyFound)
	})
}
