package audiomix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

func TestInputArgsTrimsAndSelects(t *testing.T) {
	in := Input{File: "voice.mp3", TrimStart: 1, TrimEnd: 2, Duration: 10}
	args := in.InputArgs()
	require.Equal(t, []string{"-ss", "1.000000", "-t", "7.000000", "-i", "voice.mp3"}, args)
}

func TestBuildGraphSingleInputSkipsAmix(t *testing.T) {
	inputs := []Input{
		{File: "a.mp3", StartTime: 2, Duration: 5, Volume: 0.8, FadeIn: 0.5, FadeOut: 0.5},
	}
	g := BuildGraph(inputs, []int{1})
	require.Equal(t, "[ai0]", g.OutputLabel)
	require.Contains(t, g.FilterComplex, "[1:a]adelay=2000|2000")
	require.Contains(t, g.FilterComplex, "volume=0.8")
	require.Contains(t, g.FilterComplex, "afade=t=in:st=2:d=0.5")
	require.Contains(t, g.FilterComplex, "afade=t=out:st=6.5:d=0.5")
	require.Contains(t, g.FilterComplex, "[ai0]")
	require.NotContains(t, g.FilterComplex, "amix")
}

func TestBuildGraphMultipleInputsCombinesWithAmix(t *testing.T) {
	inputs := []Input{
		{File: "a.mp3", StartTime: 0, Duration: 4, Volume: 1},
		{File: "b.mp3", StartTime: 1, Duration: 3, Volume: 0.5},
	}
	g := BuildGraph(inputs, []int{0, 2})
	require.Equal(t, "[mixed]", g.OutputLabel)
	require.Contains(t, g.FilterComplex, "[0:a]adelay=0|0")
	require.Contains(t, g.FilterComplex, "[2:a]adelay=1000|1000")
	require.Contains(t, g.FilterComplex, "[ai0][ai1]amix=inputs=2:duration=longest:normalize=0[mixed]")
}

func TestBuildGraphEmptyInputsIsZeroValue(t *testing.T) {
	g := BuildGraph(nil, nil)
	require.Equal(t, Graph{}, g)
}

func TestInputFromElementCopiesTimingFields(t *testing.T) {
	el := timeline.Element{
		Kind:      timeline.ElementAudio,
		StartTime: 3,
		Duration:  6,
		TrimStart: 0.5,
		TrimEnd:   0.25,
		Volume:    0.9,
		FadeIn:    1,
		FadeOut:   1,
	}
	in := InputFromElement(el, "/media/track.wav")
	require.Equal(t, Input{
		File:      "/media/track.wav",
		StartTime: 3,
		TrimStart: 0.5,
		TrimEnd:   0.25,
		Duration:  6,
		Volume:    0.9,
		FadeIn:    1,
		FadeOut:   1,
	}, in)
}
