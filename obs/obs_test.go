package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdoutProviderBuildsAndShutsDown(t *testing.T) {
	ctx := context.Background()
	p, err := NewStdoutProvider(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Metrics)

	_, span := p.Tracer.Start(ctx, "test-span")
	span.End()

	p.Metrics.InteractionsTotal.Add(ctx, 1)
	p.Metrics.ClaimsAccepted.Add(ctx, 1)
	p.Metrics.ClaimsRejected.Add(ctx, 1)
	p.Metrics.CheatFlagsRaised.Add(ctx, 1)
	p.Metrics.TransactionsAppended.Add(ctx, 1)
	p.Metrics.ReplayDuration.Record(ctx, 0.01)

	assert.NoError(t, p.Shutdown(ctx))
}
