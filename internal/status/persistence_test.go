package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	p := NewFilePersistence(base)

	now := time.Now().UTC().Truncate(time.Second)
	saved := &PushStatus{
		Phase:      PushPhaseComplete,
		Message:    "pushed",
		CommitHash: "abc123",
		Time:       &now,
	}
	require.NoError(t, p.Save(t.Context(), "main", saved))

	loaded, err := p.Load(t.Context(), "main")
	require.NoError(t, err)
	assert.Equal(t, PushPhaseComplete, loaded.Phase)
	assert.Equal(t, "pushed", loaded.Message)
	assert.Equal(t, "abc123", loaded.CommitHash)
	require.NotNil(t, loaded.Time)
	assert.True(t, now.Equal(*loaded.Time))
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	p := NewFilePersistence(t.TempDir())

	loaded, err := p.Load(t.Context(), "never-synced")
	require.NoError(t, err)
	assert.Equal(t, PushPhaseNone, loaded.Phase)
	assert.Empty(t, loaded.CommitHash)
}

func TestLoadCorrupt(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "main"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "main", StatusFileName), []byte("{not json"), 0600))

	p := NewFilePersistence(base)
	_, err := p.Load(t.Context(), "main")
	require.Error(t, err)
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	p := NewFilePersistence(t.TempDir())

	require.NoError(t, p.Save(t.Context(), "main", &PushStatus{Phase: PushPhaseFailed, Message: "remote diverged"}))
	require.NoError(t, p.Save(t.Context(), "main", &PushStatus{Phase: PushPhaseComplete}))

	loaded, err := p.Load(t.Context(), "main")
	require.NoError(t, err)
	assert.Equal(t, PushPhaseComplete, loaded.Phase)
	assert.Empty(t, loaded.Message)
}
