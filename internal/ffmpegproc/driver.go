package ffmpegproc

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
)

// Executor abstracts process creation so the driver can be exercised with a
// fake in tests (spec §9: "no module spawns ffmpeg directly outside the
// process driver"). Grounded on the teacher's CommandRunner seam in
// internal/transcode/ffmpeg/runner.go.
type Executor interface {
	// Start launches binary with args in its own process group and returns
	// the live command, with pipes for stdin and stderr.
	Start(ctx context.Context, binary string, args []string) (Process, error)
}

// Process is the minimal surface the driver needs from a running command.
type Process interface {
	Pid() int
	StdinPipe() (WriteCloser, error)
	StderrPipe() (ReadCloser, error)
	Wait() error
}

// ReadCloser/WriteCloser mirror io.ReadCloser/io.WriteCloser; re-declared
// here so Executor/Process don't force an io import cycle on callers that
// only need the Driver's higher-level API.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}
type WriteCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// OSExecutor runs real ffmpeg subprocesses via os/exec, each in its own
// process group so KillProcess can terminate the whole tree.
type OSExecutor struct{}

func (OSExecutor) Start(ctx context.Context, binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &osProcess{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

type osProcess struct {
	cmd    *exec.Cmd
	stdin  WriteCloser
	stderr ReadCloser
}

func (p *osProcess) Pid() int                        { return p.cmd.Process.Pid }
func (p *osProcess) StdinPipe() (WriteCloser, error)  { return p.stdin, nil }
func (p *osProcess) StderrPipe() (ReadCloser, error)  { return p.stderr, nil }
func (p *osProcess) Wait() error                      { return p.cmd.Wait() }

// Driver runs ffmpeg (and ffprobe-style validation probes) as argv-only
// subprocesses, reports progress, and enforces the SIGTERM-then-grace-
// then-SIGKILL cancellation contract (spec §5.2). Grounded on the
// teacher's Runner.RunFFmpeg/runFFmpegCommand.
type Driver struct {
	BinaryPath   string
	GracePeriod  time.Duration
	Registry     *Registry
	Log          hclog.Logger
	executor     Executor
}

func NewDriver(binaryPath string, gracePeriod time.Duration, registry *Registry, log hclog.Logger) *Driver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if registry == nil {
		registry = NewRegistry(log)
	}
	return &Driver{
		BinaryPath:  binaryPath,
		GracePeriod: gracePeriod,
		Registry:    registry,
		Log:         log.Named("ffmpegproc.driver"),
		executor:    OSExecutor{},
	}
}

// WithExecutor overrides the process executor (for tests). Returns the
// driver for chaining.
func (d *Driver) WithExecutor(e Executor) *Driver {
	d.executor = e
	return d
}

// Result is the outcome of a single ffmpeg invocation.
type Result struct {
	StderrTail string // last ~4KB of stderr, for diagnostics/history
}

const stderrTailLimit = 4096

// StdinFeeder writes frame data to ffmpeg's stdin (Mode D's image2pipe
// stream) and closes it when done. Run starts it in its own goroutine once
// the process is spawned; most modes pass nil since they only use -i files.
type StdinFeeder func(stdin WriteCloser) error

// Run validates args, spawns ffmpeg, streams progress to sink, and blocks
// until exit or ctx cancellation. On cancellation it escalates SIGTERM then
// SIGKILL per GracePeriod and returns qcuterrors.KindTimeout if ctx's
// deadline passed, qcuterrors.KindCancelled otherwise. A non-zero
// exit or spawn failure returns qcuterrors.KindSubprocessCrash (downgradable
// by the dispatcher). sessionID scopes the process in the Registry so a
// session-wide cancellation sweep can find it. If feeder is non-nil it
// drives ffmpeg's stdin (Mode D); otherwise stdin is closed immediately so
// ffmpeg never blocks waiting for input it will never receive.
func (d *Driver) Run(ctx context.Context, sessionID string, args []string, sink ProgressSink, feeder StdinFeeder) (Result, error) {
	if err := ValidateArgs(args); err != nil {
		return Result{}, qcuterrors.Wrap(qcuterrors.KindInvalidTimeline, "invalid ffmpeg arguments", err)
	}

	d.Log.Debug("spawning ffmpeg", "session_id", sessionID, "args", args)

	proc, err := d.executor.Start(ctx, d.BinaryPath, args)
	if err != nil {
		return Result{}, qcuterrors.Wrap(qcuterrors.KindSubprocessCrash, "failed to start ffmpeg", err)
	}

	pid := proc.Pid()
	d.Registry.Register(pid, sessionID)
	defer d.Registry.Unregister(pid)

	stderr, _ := proc.StderrPipe()
	var tailBuf bytes.Buffer
	var tailMu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		scanProgress(&tailTee{inner: stderr, buf: &tailBuf, mu: &tailMu}, sink)
	}()

	if stdin, err := proc.StdinPipe(); err == nil && stdin != nil {
		if feeder != nil {
			go func() {
				if ferr := feeder(stdin); ferr != nil {
					d.Log.Warn("stdin feeder failed", "session_id", sessionID, "error", ferr)
				}
			}()
		} else {
			_ = stdin.Close()
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		d.Log.Warn("export cancelled, terminating ffmpeg", "session_id", sessionID, "pid", pid)
		if err := KillProcess(pid, d.GracePeriod); err != nil {
			d.Log.Error("failed to kill ffmpeg process", "pid", pid, "error", err)
		}
		<-waitErr
		if ctx.Err() == context.DeadlineExceeded {
			runErr = qcuterrors.New(qcuterrors.KindTimeout, "export timed out")
		} else {
			runErr = qcuterrors.New(qcuterrors.KindCancelled, "export cancelled")
		}
	case err := <-waitErr:
		if err != nil {
			runErr = qcuterrors.WithStderr(qcuterrors.KindSubprocessCrash, "ffmpeg exited with error", tailString(&tailBuf, &tailMu), err)
		}
	}

	<-done
	return Result{StderrTail: tailString(&tailBuf, &tailMu)}, runErr
}

func tailString(buf *bytes.Buffer, mu *sync.Mutex) string {
	mu.Lock()
	defer mu.Unlock()
	s := buf.String()
	if len(s) > stderrTailLimit {
		return s[len(s)-stderrTailLimit:]
	}
	return s
}

// tailTee wraps stderr so every byte read is also captured into the tail
// buffer, independent of how scanProgress tokenizes lines.
type tailTee struct {
	inner ReadCloser
	buf   *bytes.Buffer
	mu    *sync.Mutex
}

func (t *tailTee) Read(p []byte) (int, error) {
	n, err := t.inner.Read(p)
	if n > 0 {
		t.mu.Lock()
		t.buf.Write(p[:n])
		t.mu.Unlock()
	}
	return n, err
}
