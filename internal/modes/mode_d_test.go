package modes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

type fakeFrameSource struct {
	frames []Frame
}

func (f *fakeFrameSource) Frames(ctx context.Context) (<-chan Frame, <-chan error) {
	out := make(chan Frame, len(f.frames))
	errc := make(chan error)
	for _, fr := range f.frames {
		out <- fr
	}
	close(out)
	close(errc)
	return out, errc
}

func TestFrameRenderStreamsFramesToStdin(t *testing.T) {
	tmp := t.TempDir()
	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fr := NewFrameRender(newTestDriver(exec), nil)

	src := &fakeFrameSource{frames: []Frame{{Index: 0, PNG: []byte("png0")}, {Index: 1, PNG: []byte("png1")}}}
	req := Request{
		Timeline: &timeline.Timeline{}, Media: timeline.MediaIndex{},
		Settings: analyzer.Settings{Width: 1280, Height: 720, FPS: 24}, OutputPath: tmp + "/out.mp4",
	}
	err = fr.Produce(context.Background(), sess, req, sess.ID, src, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1)
	args := exec.lastArgs[0]
	require.Contains(t, args, "image2pipe")
	require.Contains(t, args, req.OutputPath)
}
