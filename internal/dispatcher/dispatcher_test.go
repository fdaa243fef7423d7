package dispatcher

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/modes"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// scriptedExecutor fails the first `failCount` spawns (simulating a
// subprocess crash) and succeeds thereafter, letting tests exercise the
// downgrade chain without a real ffmpeg binary.
type scriptedExecutor struct {
	mu        sync.Mutex
	failCount int
	calls     int
}

func (e *scriptedExecutor) Start(ctx context.Context, binary string, args []string) (ffmpegproc.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failCount {
		return &failingProcess{}, nil
	}
	return &okProcess{}, nil
}

type okProcess struct{}

func (okProcess) Pid() int                                   { return 1 }
func (okProcess) StdinPipe() (ffmpegproc.WriteCloser, error) { return wc{}, nil }
func (okProcess) StderrPipe() (ffmpegproc.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (okProcess) Wait() error { return nil }

type failingProcess struct{}

func (failingProcess) Pid() int                                   { return 2 }
func (failingProcess) StdinPipe() (ffmpegproc.WriteCloser, error) { return wc{}, nil }
func (failingProcess) StderrPipe() (ffmpegproc.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("error=exit status 1\n")), nil
}
func (failingProcess) Wait() error { return errors.New("exit status 1") }

type wc struct{}

func (wc) Write(p []byte) (int, error) { return len(p), nil }
func (wc) Close() error                { return nil }

func testReq(tmp string) modes.Request {
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 5},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind:     timeline.TrackMedia,
		Elements: []timeline.Element{{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 5}},
	}}}
	return modes.Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
}

func TestDispatcherDowngradesOnCrashThenSucceeds(t *testing.T) {
	tmp := t.TempDir()
	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &scriptedExecutor{failCount: 1} // direct copy crashes, normalize succeeds
	driver := ffmpegproc.NewDriver("ffmpeg", 2*time.Second, ffmpegproc.NewRegistry(nil), nil).WithExecutor(exec)
	d := New(driver, 1, nil, nil)

	outcome := d.Run(context.Background(), sess, testReq(tmp), analyzer.StrategyDirectCopy, nil)

	require.NoError(t, outcome.OutputErr)
	require.Equal(t, analyzer.StrategyNormalize, outcome.Strategy)
	require.Len(t, outcome.Attempts, 2)
	require.Error(t, outcome.Attempts[0].Err)
}

func TestDispatcherFrameRenderFailureIsTerminal(t *testing.T) {
	tmp := t.TempDir()
	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &scriptedExecutor{failCount: 100} // everything crashes
	driver := ffmpegproc.NewDriver("ffmpeg", 2*time.Second, ffmpegproc.NewRegistry(nil), nil).WithExecutor(exec)
	d := New(driver, 1, nil, nil)

	outcome := d.Run(context.Background(), sess, testReq(tmp), analyzer.StrategyDirectCopy, nil)

	require.Error(t, outcome.OutputErr)
	require.Equal(t, analyzer.StrategyFrameRender, outcome.Strategy)
}
