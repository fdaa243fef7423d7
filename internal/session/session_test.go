package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCreatesFramesAndOutputDirs(t *testing.T) {
	tmp := t.TempDir()
	s, err := New(Options{Root: tmp}, nil)
	require.NoError(t, err)

	require.DirExists(t, s.FramesDir)
	require.DirExists(t, s.OutputDir)
	require.Equal(t, filepath.Join(tmp, "qcut-export", s.ID, "frames"), s.FramesDir)
}

func TestFramePathAndClipPathAreDeterministic(t *testing.T) {
	s := &Session{FramesDir: "/tmp/x/frames", OutputDir: "/tmp/x/output"}
	require.Equal(t, "/tmp/x/frames/frame-00000007.png", s.FramePath(7))
	require.Equal(t, "/tmp/x/output/clip-0003.mp4", s.ClipPath(3))
}

func TestCloseRemovesDirectoryUnlessKept(t *testing.T) {
	tmp := t.TempDir()
	s, err := New(Options{Root: tmp}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Close(true))
	require.DirExists(t, s.Root)

	require.NoError(t, s.Close(false))
	require.NoDirExists(t, s.Root)
}

func TestSweepStaleRemovesOldSessionsOnly(t *testing.T) {
	tmp := t.TempDir()
	base := filepath.Join(tmp, "qcut-export")
	oldDir := filepath.Join(base, "old-session")
	freshDir := filepath.Join(base, "fresh-session")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, old, old))

	removed, err := SweepStale(tmp, time.Hour, nil)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoDirExists(t, oldDir)
	require.DirExists(t, freshDir)
}

func TestSweepStaleOnMissingRootIsNoop(t *testing.T) {
	removed, err := SweepStale(filepath.Join(t.TempDir(), "nope"), time.Hour, nil)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
