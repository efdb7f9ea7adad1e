package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/canaryctl/internal/logging"
	"github.com/systmms/canaryctl/internal/rollout"
)

func newTestArchive(t *testing.T) *FileArchive {
	t.Helper()
	archive, err := NewFileArchive(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	return archive
}

func snapshotFor(service, id string, phase rollout.Phase, startedAt time.Time) rollout.Snapshot {
	return rollout.Snapshot{
		ID:        id,
		Service:   service,
		Phase:     phase,
		Weight:    100,
		StartedAt: startedAt,
		Transitions: []rollout.TransitionRecord{
			{From: rollout.PhaseInitializing, To: rollout.PhaseProgressing, Timestamp: startedAt},
		},
	}
}

func TestFileArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	snap := snapshotFor("payments", "ro-1", rollout.PhaseSucceeded, time.Now())

	require.NoError(t, archive.Archive(snap))

	got, err := archive.Get("ro-1")
	require.NoError(t, err)
	assert.Equal(t, "payments", got.Service)
	assert.Equal(t, rollout.PhaseSucceeded, got.Phase)
	assert.Len(t, got.Transitions, 1)
}

func TestFileArchiveGetMissing(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	_, err := archive.Get("ro-missing")
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestFileArchiveHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	base := time.Now()

	require.NoError(t, archive.Archive(snapshotFor("payments", "ro-1", rollout.PhaseSucceeded, base.Add(-2*time.Hour))))
	require.NoError(t, archive.Archive(snapshotFor("payments", "ro-2", rollout.PhaseRolledBack, base.Add(-time.Hour))))
	require.NoError(t, archive.Archive(snapshotFor("payments", "ro-3", rollout.PhaseSucceeded, base)))

	history, err := archive.History("payments", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "ro-3", history[0].ID)
	assert.Equal(t, "ro-2", history[1].ID)
	assert.Equal(t, "ro-1", history[2].ID)
}

func TestFileArchiveHistoryLimit(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	base := time.Now()
	for i, id := range []string{"ro-1", "ro-2", "ro-3"} {
		require.NoError(t, archive.Archive(
			snapshotFor("payments", id, rollout.PhaseSucceeded, base.Add(time.Duration(i)*time.Minute))))
	}

	history, err := archive.History("payments", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFileArchiveHistoryFiltersByService(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	require.NoError(t, archive.Archive(snapshotFor("payments", "ro-1", rollout.PhaseSucceeded, time.Now())))
	require.NoError(t, archive.Archive(snapshotFor("checkout", "ro-2", rollout.PhaseFailed, time.Now())))

	history, err := archive.History("payments", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ro-1", history[0].ID)

	all, err := archive.History("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileArchiveSanitizesServiceNames(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)
	snap := snapshotFor("team/payments api", "ro-1", rollout.PhaseSucceeded, time.Now())

	require.NoError(t, archive.Archive(snap))

	history, err := archive.History("team/payments api", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "team/payments api", history[0].Service)
}

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c_d", sanitizeFileName("a/b:c d"))
	assert.Equal(t, "plain-name", sanitizeFileName("plain-name"))
}
