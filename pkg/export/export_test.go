package export

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/config"
	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

type okProcess struct{}

func (okProcess) Pid() int                                   { return 1 }
func (okProcess) StdinPipe() (ffmpegproc.WriteCloser, error) { return nopWC{}, nil }
func (okProcess) StderrPipe() (ffmpegproc.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("frame=10 fps=30 time=00:00:01.00 bitrate=100kbits/s speed=1.0x\n")), nil
}
func (okProcess) Wait() error { return nil }

type nopWC struct{}

func (nopWC) Write(p []byte) (int, error) { return len(p), nil }
func (nopWC) Close() error                { return nil }

type okExecutor struct{}

func (okExecutor) Start(ctx context.Context, binary string, args []string) (ffmpegproc.Process, error) {
	return okProcess{}, nil
}

func testRequest(tmp string) Request {
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 5, Codec: "h264", PixFmt: "yuv420p"},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind:     timeline.TrackMedia,
		Elements: []timeline.Element{{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 5}},
	}}}
	return Request{
		Timeline: tl, Media: media,
		Width: 1920, Height: 1080, FPS: 30,
		OutputPath: tmp + "/out.mp4", Quality: QualityMedium,
	}
}

func TestExportSucceedsAndRecordsHistory(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Session.Root = tmp

	core, err := New(cfg, "", nil)
	require.NoError(t, err)
	defer core.Close()
	core.WithExecutor(okExecutor{})

	var events []Progress
	req := testRequest(tmp)
	req.Progress = ProgressFunc(func(p Progress) { events = append(events, p) })

	outcome, err := core.Export(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome.Kind)
	require.Equal(t, req.OutputPath, outcome.OutputPath)
}

func TestExportRejectsInvalidTimeline(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Session.Root = tmp

	core, err := New(cfg, "", nil)
	require.NoError(t, err)
	defer core.Close()
	core.WithExecutor(okExecutor{})

	req := testRequest(tmp)
	req.Media = timeline.MediaIndex{} // dangling reference now

	outcome, err := core.Export(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome.Kind)
}
