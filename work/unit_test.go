package work_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m9ra/ServeRick-sub001/work"
)

func TestUnit_Processors(t *testing.T) {
	u := work.NewUnit("u0", work.WithExtraProcessor("Render"), work.WithExtraProcessor(work.OutputProcessor))
	defer u.Close()

	assert.Equal(t, "u0", u.Name())
	require.NotNil(t, u.Output())
	require.NotNil(t, u.Database())
	assert.NotSame(t, u.Output(), u.Database())
	assert.Equal(t, "u0/Output", u.Output().Name())
	assert.Equal(t, "u0/Database", u.Database().Name())

	render, ok := u.Processor("Render")
	require.True(t, ok)
	assert.Equal(t, "u0/Render", render.String())
	_, ok = u.Processor("Missing")
	assert.False(t, ok)

	assert.Len(t, u.Processors(), 3)
	assert.Len(t, u.Stats(), 3)
}

func TestUnit_ChainAcrossProcessors(t *testing.T) {
	u := work.NewUnit("u1", work.WithPinning(0))
	defer u.Close()

	var seen []string
	chain, _, done := doneChain()
	for _, p := range []*work.Processor{u.Database(), u.Output(), u.Database()} {
		p := p
		require.NoError(t, chain.AppendItem(work.NewFuncItem(p, func(ctx context.Context) error {
			cur, _ := work.ProcessorFromContext(ctx)
			seen = append(seen, cur.Name())
			return nil
		})))
	}
	require.NoError(t, chain.StartProcessing())
	waitFor(t, done, "chain completion")
	assert.Equal(t, []string{"u1/Database", "u1/Output", "u1/Database"}, seen)
}
