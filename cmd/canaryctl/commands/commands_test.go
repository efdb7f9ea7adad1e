package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/rollout"
	"github.com/systmms/canaryctl/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{Logger: logging.Discard()}
}

const validRollout = `
service: payments
steps:
  - weight: 10
    pause: 5m
  - weight: 100
    pause: 5m
metricChecks:
  - name: error_rate
    direction: max
    threshold: 1.0
    interval: 30s
    failures_to_abort: 3
analysisFailureBudget: 5
`

func writeRolloutFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateCommandAcceptsValidSpec(t *testing.T) {
	cmd := NewValidateCommand(testConfig())
	cmd.SetArgs([]string{writeRolloutFile(t, validRollout)})
	assert.NoError(t, cmd.Execute())
}

func TestValidateCommandRejectsBadSpec(t *testing.T) {
	// Final weight is not 100.
	bad := `
service: payments
steps:
  - weight: 10
metricChecks:
  - name: error_rate
    direction: max
    threshold: 1.0
`
	cmd := NewValidateCommand(testConfig())
	cmd.SetArgs([]string{writeRolloutFile(t, bad)})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100")
}

func TestValidateCommandMissingFile(t *testing.T) {
	cmd := NewValidateCommand(testConfig())
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	assert.Error(t, cmd.Execute())
}

func TestHistoryCommandReadsArchive(t *testing.T) {
	dataDir := t.TempDir()
	archive, err := storage.NewFileArchive(dataDir, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, archive.Archive(rollout.Snapshot{
		ID:        "ro-1",
		Service:   "payments",
		Phase:     rollout.PhaseSucceeded,
		Weight:    100,
		StartedAt: time.Now().Add(-time.Hour),
	}))

	cmd := NewHistoryCommand(testConfig())
	cmd.SetArgs([]string{"payments", "--data-dir", dataDir, "--format", "json"})
	assert.NoError(t, cmd.Execute())
}

func TestHistoryCommandEmptyArchive(t *testing.T) {
	cmd := NewHistoryCommand(testConfig())
	cmd.SetArgs([]string{"--data-dir", t.TempDir()})
	assert.NoError(t, cmd.Execute())
}

func TestPhaseGlyph(t *testing.T) {
	assert.Equal(t, "✓", phaseGlyph(rollout.PhaseSucceeded))
	assert.Equal(t, "✗", phaseGlyph(rollout.PhaseRolledBack))
	assert.Equal(t, "✗", phaseGlyph(rollout.PhaseFailed))
	assert.Equal(t, "…", phaseGlyph(rollout.PhaseAnalyzing))
}
