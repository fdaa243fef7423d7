// Package audiomix implements the Audio Mixer (spec §4.8): per-element
// trim/offset/volume/fade filter construction and the final amix
// combinator. Grounded on videocraft's addAudioConcatenationFilters /
// addImageOverlayFilters string-builder idiom (other_examples) and the
// teacher's buildAudioCodecArgs.
package audiomix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// Input is one audio source to mix: a file plus the element's timing,
// trim, volume, and fade parameters (spec §4.8).
type Input struct {
	File      string
	StartTime float64
	TrimStart float64
	TrimEnd   float64
	Duration  float64
	Volume    float64
	FadeIn    float64
	FadeOut   float64
}

// InputArgs returns the ffmpeg argv fragment selecting and trimming this
// input (spec §4.8: "-ss trimStart -t (duration-trimEnd-trimStart) at
// input").
func (in Input) InputArgs() []string {
	span := in.Duration - in.TrimEnd - in.TrimStart
	return []string{"-ss", fmt.Sprintf("%.6f", in.TrimStart), "-t", fmt.Sprintf("%.6f", span), "-i", in.File}
}

// Graph is the compiled filter_complex string plus the final mixed-output
// label, ready to append to an ffmpeg invocation's -filter_complex.
type Graph struct {
	FilterComplex string
	OutputLabel   string
}

// BuildGraph compiles the per-input adelay/volume/afade chains and combines
// them with amix (spec §4.8). inputIndices gives the ffmpeg -i slot each
// Input was placed at (audio inputs are not necessarily input 0).
func BuildGraph(inputs []Input, inputIndices []int) Graph {
	if len(inputs) == 0 {
		return Graph{}
	}
	var filters []string
	var labels []string

	for i, in := range inputs {
		label := fmt.Sprintf("ai%d", i)
		delayMs := in.StartTime * 1000
		fadeOutStart := in.StartTime + in.Duration - in.FadeOut

		chain := fmt.Sprintf(
			"[%d:a]adelay=%s|%s,volume=%s,afade=t=in:st=%s:d=%s,afade=t=out:st=%s:d=%s[%s]",
			inputIndices[i],
			trimFloat(delayMs), trimFloat(delayMs),
			trimFloat(in.Volume),
			trimFloat(in.StartTime), trimFloat(in.FadeIn),
			trimFloat(fadeOutStart), trimFloat(in.FadeOut),
			label,
		)
		filters = append(filters, chain)
		labels = append(labels, "["+label+"]")
	}

	if len(inputs) == 1 {
		return Graph{FilterComplex: strings.Join(filters, ";"), OutputLabel: labels[0]}
	}

	mix := fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[mixed]", strings.Join(labels, ""), len(inputs))
	filters = append(filters, mix)
	return Graph{FilterComplex: strings.Join(filters, ";"), OutputLabel: "[mixed]"}
}

// trimFloat mirrors filtergraph's minimal-digits float formatting so the
// two packages' generated filter strings read the same way.
func trimFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// InputFromElement derives an Input from an audio/caption-track element and
// its resolved media path (spec §4.8: element volume/fadeIn/fadeOut/trim
// feed the mix graph directly; muted elements are the caller's concern to
// filter out before building the input list).
func InputFromElement(el timeline.Element, path string) Input {
	return Input{
		File:      path,
		StartTime: el.StartTime,
		TrimStart: el.TrimStart,
		TrimEnd:   el.TrimEnd,
		Duration:  el.Duration,
		Volume:    el.Volume,
		FadeIn:    el.FadeIn,
		FadeOut:   el.FadeOut,
	}
}
