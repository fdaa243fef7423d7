// Package session implements the per-export Session (spec §5/§9): a
// dedicated working directory, not a global singleton, scoped to one
// export's lifetime. Grounded on the teacher's
// internal/modules/playbackmodule/core/session_manager.go, generalized
// from a global in-memory session map to a value returned directly to the
// caller that created it (spec §9's redesign note: "no process-wide
// singleton — each export call owns its own session").
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
)

// Session is one export's scratch space: frames/ holds Mode D's rendered
// PNG sequence, output/ holds intermediate per-clip renders for Mode B,
// both discarded unless KeepOnError preserved them after a failure.
type Session struct {
	ID        string
	Root      string
	FramesDir string
	OutputDir string
	Started   time.Time
	log       hclog.Logger
}

// Options configures session directory creation.
type Options struct {
	Root        string // parent directory, e.g. os.TempDir()
	KeepOnError bool
}

// New creates a fresh session directory tree under opts.Root (spec §5:
// "<tmp>/qcut-export/<session id>/{frames,output}").
func New(opts Options, log hclog.Logger) (*Session, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	id := uuid.NewString()
	root := filepath.Join(opts.Root, "qcut-export", id)
	framesDir := filepath.Join(root, "frames")
	outputDir := filepath.Join(root, "output")

	for _, dir := range []string{framesDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, qcuterrors.Wrap(qcuterrors.KindIO, "failed to create session directory", err)
		}
	}

	s := &Session{
		ID:        id,
		Root:      root,
		FramesDir: framesDir,
		OutputDir: outputDir,
		Started:   time.Now(),
		log:       log.Named("session").With("session_id", id),
	}
	s.log.Debug("session created", "root", root)
	return s, nil
}

// FramePath returns the path Mode D should write frame n's PNG to.
func (s *Session) FramePath(n int) string {
	return filepath.Join(s.FramesDir, fmt.Sprintf("frame-%08d.png", n))
}

// ClipPath returns the path Mode B should write normalized clip i to.
func (s *Session) ClipPath(i int) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("clip-%04d.mp4", i))
}

// Close removes the session directory tree, unless keep is true (spec §5:
// "sessions are kept on disk when the export failed and KeepOnError is
// set, to aid diagnosis").
func (s *Session) Close(keep bool) error {
	if keep {
		s.log.Info("keeping session directory after failure", "root", s.Root)
		return nil
	}
	s.log.Debug("removing session directory", "root", s.Root)
	if err := os.RemoveAll(s.Root); err != nil {
		return qcuterrors.Wrap(qcuterrors.KindIO, "failed to remove session directory", err)
	}
	return nil
}
