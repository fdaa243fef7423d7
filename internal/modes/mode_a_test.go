package modes

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// capturingExecutor records every argv it was asked to run and succeeds
// immediately, so mode producers can be tested without a real ffmpeg.
type capturingExecutor struct {
	mu       sync.Mutex
	lastArgs [][]string
}

func (e *capturingExecutor) Start(ctx context.Context, binary string, args []string) (ffmpegproc.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastArgs = append(e.lastArgs, append([]string{}, args...))
	return &fakeOKProcess{}, nil
}

type fakeOKProcess struct{}

func (fakeOKProcess) Pid() int                                   { return 99 }
func (fakeOKProcess) StdinPipe() (ffmpegproc.WriteCloser, error) { return nopWC{}, nil }
func (fakeOKProcess) StderrPipe() (ffmpegproc.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (fakeOKProcess) Wait() error { return nil }

type nopWC struct{}

func (nopWC) Write(p []byte) (int, error) { return len(p), nil }
func (nopWC) Close() error                { return nil }

func newTestDriver(exec *capturingExecutor) *ffmpegproc.Driver {
	return ffmpegproc.NewDriver("ffmpeg", 5*time.Second, ffmpegproc.NewRegistry(nil), nil).WithExecutor(exec)
}

func testTimelineTwoClips(tmpDir string) (*timeline.Timeline, timeline.MediaIndex) {
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmpDir + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 5},
		"b": {ID: "b", Kind: timeline.MediaVideo, Path: tmpDir + "/b.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 5},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind: timeline.TrackMedia,
		Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 5},
			{Kind: timeline.ElementMedia, MediaID: "b", StartTime: 5, Duration: 5},
		},
	}}}
	return tl, media
}

func TestDirectCopyWritesConcatListAndRunsCopy(t *testing.T) {
	tmp := t.TempDir()
	tl, media := testTimelineTwoClips(tmp)

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	driver := newTestDriver(exec)
	dc := NewDirectCopy(driver, nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = dc.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1)
	args := exec.lastArgs[0]
	require.Contains(t, args, "-c")
	require.Contains(t, args, "copy")
	require.Contains(t, args, req.OutputPath)

	listPath := sess.Root + "/concat-list.txt"
	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "file '"+tmp+"/a.mp4'")
	require.Contains(t, string(data), "file '"+tmp+"/b.mp4'")
}

func TestDirectCopyRejectsEmptyTimeline(t *testing.T) {
	tmp := t.TempDir()
	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	dc := NewDirectCopy(newTestDriver(&capturingExecutor{}), nil)
	req := Request{Timeline: &timeline.Timeline{}, Media: timeline.MediaIndex{}, OutputPath: tmp + "/out.mp4"}
	err = dc.Produce(context.Background(), sess, req, sess.ID, nil)
	require.Error(t, err)
}
