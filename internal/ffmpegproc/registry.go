// Package ffmpegproc is the FFmpeg Process Driver (spec §5): argv-only
// subprocess invocation, stderr progress parsing, and signal-escalation
// cancellation. Grounded on the teacher's sdk/transcoding/process/registry.go
// (PID tracking + SIGTERM-then-SIGKILL escalation) and
// internal/transcode/ffmpeg/runner.go (progress-line regex parsing).
package ffmpegproc

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Registry tracks every FFmpeg process this session has spawned, so a
// session cancellation or crash-cleanup sweep can terminate all of them
// even if the code path that spawned a process never returns cleanly.
type Registry struct {
	mu        sync.Mutex
	processes map[int]*entry
	log       hclog.Logger
}

type entry struct {
	pid       int
	sessionID string
	started   time.Time
}

func NewRegistry(log hclog.Logger) *Registry {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Registry{processes: make(map[int]*entry), log: log.Named("ffmpegproc.registry")}
}

func (r *Registry) Register(pid int, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes[pid] = &entry{pid: pid, sessionID: sessionID, started: time.Now()}
	r.log.Debug("registered process", "pid", pid, "session_id", sessionID)
}

func (r *Registry) Unregister(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, pid)
}

// PidsForSession returns every still-registered PID spawned for sessionID.
func (r *Registry) PidsForSession(sessionID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pids []int
	for pid, e := range r.processes {
		if e.sessionID == sessionID {
			pids = append(pids, pid)
		}
	}
	return pids
}

// KillProcess escalates SIGTERM to the process group, waits gracePeriod for
// voluntary exit, then SIGKILLs (spec §5.2: "SIGTERM to the process group,
// wait up to a grace period, then SIGKILL").
func KillProcess(pid int, gracePeriod time.Duration) error {
	if err := syscall.Kill(pid, 0); err != nil {
		return nil // already gone
	}

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}

	if pgid != pid {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}
	_ = syscall.Kill(pid, syscall.SIGTERM)

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if pgid != pid {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("process %d did not terminate after SIGKILL", pid)
}
