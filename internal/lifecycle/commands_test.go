package lifecycle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/progress"
)

func mustCommand(t *testing.T, v any) config.Command {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var c config.Command
	require.NoError(t, json.Unmarshal(data, &c))
	return c
}

func TestAggregateCommandsFeaturesThenConfig(t *testing.T) {
	plan := &feature.Plan{Features: []feature.ResolvedFeature{
		{ID: "ghcr.io/devcontainers/features/node", OnCreateCommand: []string{"install-node"}},
	}}
	cfg := &config.DevContainerConfig{OnCreateCommand: mustCommand(t, "echo hi")}

	cmds, err := AggregateCommands(progress.PhaseOnCreate, plan, cfg)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, SourceFeature, cmds[0].Source.Kind)
	assert.Equal(t, "install-node", cmds[0].Value)
	assert.Equal(t, SourceConfig, cmds[1].Source.Kind)
	assert.Equal(t, "echo hi", cmds[1].Value)
}

func TestAggregateCommandsDotfilesHasNoConfigField(t *testing.T) {
	cfg := &config.DevContainerConfig{OnCreateCommand: mustCommand(t, "echo hi")}
	cmds, err := AggregateCommands(progress.PhaseDotfiles, nil, cfg)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestAggregateCommandsEmptyWhenNothingConfigured(t *testing.T) {
	cmds, err := AggregateCommands(progress.PhasePostStart, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}
