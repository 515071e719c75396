package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRecordingsRemovesOnlyStalePayloads(t *testing.T) {
	store := stores.NewLocalStore(t.TempDir())

	require.NoError(t, store.Write("stale.wav", strings.NewReader("old payload")))
	require.NoError(t, store.Write("fresh.wav", strings.NewReader("new payload")))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root, "stale.wav"), old, old))

	sweepRecordings(store, 24*time.Hour)

	_, _, err := store.Read("stale.wav")
	assert.Error(t, err, "stale payload should be swept")
	reader, size, err := store.Read("fresh.wav")
	require.NoError(t, err, "recent payload must survive the sweep")
	assert.Equal(t, int64(len("new payload")), size)
	reader.Close()
}

func TestSweepRecordingsMissingRootIsSoft(t *testing.T) {
	store := stores.NewLocalStore(filepath.Join(t.TempDir(), "never-created"))
	sweepRecordings(store, time.Hour)
}
