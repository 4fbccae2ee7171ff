package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRequiresExactlyOneScope(t *testing.T) {
	for _, args := range [][]string{
		{"sweep"},
		{"sweep", "--all", "--owner", "u1"},
	} {
		cmd := rootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "exactly one of --owner or --all")
	}
}

func TestSweepAllWithMemoryBackends(t *testing.T) {
	t.Setenv("SHARPFORM_STORE_BACKEND", "memory")
	t.Setenv("SHARPFORM_BLOB_BACKEND", "memory")
	t.Setenv("SHARPFORM_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs([]string{"sweep", "--all"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "deleted 0 file(s)\n", out.String())
}
