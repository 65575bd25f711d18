package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/breath.report/internal/monitoring"
)

func init() {
	monitoring.Mute()
}

func TestFlagDefaults(t *testing.T) {
	root := newRootCommand()

	plan := root.Flags().Lookup("plan")
	require.NotNil(t, plan)
	assert.Equal(t, "run.toml", plan.DefValue)

	maxDur := root.Flags().Lookup("max-duration")
	require.NotNil(t, maxDur)
	assert.Equal(t, "0s", maxDur.DefValue)
}

func TestMissingPlanFails(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"--plan", filepath.Join(t.TempDir(), "none.toml")})

	err := root.Execute()
	require.Error(t, err)
}
