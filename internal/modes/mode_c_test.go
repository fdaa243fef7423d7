package modes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

func TestFilterGraphAppliesEffectsAndValidatesFirst(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 4},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind: timeline.TrackMedia,
		Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 4,
				Effects: []timeline.EffectInstance{{Kind: timeline.EffectBrightness, Value: 20, Enabled: true}}},
		},
	}}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fg := NewFilterGraph(newTestDriver(exec), nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	// one validation probe run, then the real render
	require.Len(t, exec.lastArgs, 2)
	probeArgs := exec.lastArgs[0]
	require.Contains(t, probeArgs, "lavfi")

	renderArgs := exec.lastArgs[1]
	require.Contains(t, renderArgs, "-filter_complex")
	joined := renderArgs[indexOf(renderArgs, "-filter_complex")+1]
	require.Contains(t, joined, "eq=brightness=0.2")
}

func TestFilterGraphRejectsMultipleVideos(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 4},
		"b": {ID: "b", Kind: timeline.MediaVideo, Path: tmp + "/b.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 4},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind: timeline.TrackMedia,
		Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 4},
			{Kind: timeline.ElementMedia, MediaID: "b", StartTime: 4, Duration: 4},
		},
	}}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	fg := NewFilterGraph(newTestDriver(&capturingExecutor{}), nil)
	req := Request{Timeline: tl, Media: media, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.Error(t, err)
}

func TestFilterGraphTrimsBaseVideoInputAndAudio(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 10},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{{
		Kind: timeline.TrackMedia,
		Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 10, TrimStart: 2, TrimEnd: 1},
		},
	}}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fg := NewFilterGraph(newTestDriver(exec), nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1, "no effects means no validation probe")
	renderArgs := exec.lastArgs[0]
	require.Contains(t, renderArgs, "-ss")
	require.Equal(t, "2.000000", renderArgs[indexOf(renderArgs, "-ss")+1])
	require.Contains(t, renderArgs, "-t")
	require.Equal(t, "7.000000", renderArgs[indexOf(renderArgs, "-t")+1])

	// The base video's own audio mixes through audiomix with the same trim,
	// so its adelay/afade timing is keyed off the element, not a bare 0:a map.
	require.Contains(t, renderArgs, "-filter_complex")
	filterComplex := renderArgs[indexOf(renderArgs, "-filter_complex")+1]
	require.Contains(t, filterComplex, "[0:a]")
	require.NotContains(t, renderArgs, "0:a?")
}

func TestFilterGraphMutedBaseVideoOmitsItsAudioFromMix(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 5},
		"m": {ID: "m", Kind: timeline.MediaAudio, Path: tmp + "/m.mp3", Duration: 5},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{Kind: timeline.TrackMedia, Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 5, Muted: true},
		}},
		{Kind: timeline.TrackAudio, Elements: []timeline.Element{
			{Kind: timeline.ElementAudio, MediaID: "m", StartTime: 0, Duration: 5, TrimStart: 1, TrimEnd: 0.5},
		}},
	}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fg := NewFilterGraph(newTestDriver(exec), nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1)
	renderArgs := exec.lastArgs[0]

	// The base video is untrimmed, so its own "-i" carries no "-ss"/"-t"; the
	// only trim args present come from the separate, muted-exempt audio
	// element mixed in alongside it.
	baseInputIdx := indexOf(renderArgs, tmp+"/a.mp4")
	require.NotEqual(t, -1, baseInputIdx)
	require.Equal(t, "-i", renderArgs[baseInputIdx-1])

	ssIdx := indexOf(renderArgs, "-ss")
	require.NotEqual(t, -1, ssIdx)
	require.Equal(t, "1.000000", renderArgs[ssIdx+1])
	require.Equal(t, "3.500000", renderArgs[indexOf(renderArgs, "-t")+1])

	// A muted base video still mixes no audio of its own into the graph.
	filterComplex := renderArgs[indexOf(renderArgs, "-filter_complex")+1]
	require.NotContains(t, filterComplex, "[0:a]")
}

func TestFilterGraphCompositesTextAndStickerOverlays(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 4},
		"s": {ID: "s", Kind: timeline.MediaImage, Path: tmp + "/sticker.png"},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{Kind: timeline.TrackMedia, Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 4},
		}},
		{Kind: timeline.TrackText, Elements: []timeline.Element{
			{Kind: timeline.ElementText, Text: "Hello", StartTime: 1, Duration: 2, Transform: timeline.Transform{X: 0.1, Y: 0.2}},
		}},
		{Kind: timeline.TrackSticker, Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "s", StartTime: 0, Duration: 4, Transform: timeline.Transform{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2}},
		}},
	}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fg := NewFilterGraph(newTestDriver(exec), nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1)
	renderArgs := exec.lastArgs[0]
	require.Contains(t, renderArgs, tmp+"/sticker.png")

	filterComplex := renderArgs[indexOf(renderArgs, "-filter_complex")+1]
	require.Contains(t, filterComplex, "drawtext")
	require.Contains(t, filterComplex, "overlay")
}

func TestFilterGraphCompositesImageOnMediaTrack(t *testing.T) {
	tmp := t.TempDir()
	media := timeline.MediaIndex{
		"a": {ID: "a", Kind: timeline.MediaVideo, Path: tmp + "/a.mp4", Width: 1920, Height: 1080, FPS: 30, Duration: 4},
		"logo": {ID: "logo", Kind: timeline.MediaImage, Path: tmp + "/logo.png"},
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{Kind: timeline.TrackMedia, Elements: []timeline.Element{
			{Kind: timeline.ElementMedia, MediaID: "a", StartTime: 0, Duration: 4},
			{Kind: timeline.ElementMedia, MediaID: "logo", StartTime: 0, Duration: 4, Transform: timeline.Transform{X: 0.8, Y: 0.05, Width: 0.15, Height: 0.1}},
		}},
	}}

	sess, err := session.New(session.Options{Root: tmp}, nil)
	require.NoError(t, err)

	exec := &capturingExecutor{}
	fg := NewFilterGraph(newTestDriver(exec), nil)

	req := Request{Timeline: tl, Media: media, Settings: analyzer.Settings{Width: 1920, Height: 1080, FPS: 30}, OutputPath: tmp + "/out.mp4"}
	err = fg.Produce(context.Background(), sess, req, sess.ID, nil)
	require.NoError(t, err)

	require.Len(t, exec.lastArgs, 1)
	renderArgs := exec.lastArgs[0]
	require.Contains(t, renderArgs, tmp+"/logo.png", "image element on an ordinary media track must become an overlay input")

	filterComplex := renderArgs[indexOf(renderArgs, "-filter_complex")+1]
	require.Contains(t, filterComplex, "overlay")
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
