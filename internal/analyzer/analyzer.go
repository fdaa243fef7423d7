// Package analyzer implements the Export Analyzer (spec §4.1): a pure
// function from (Timeline, MediaIndex, Settings) to an ExportAnalysis
// record naming which of the four rendering strategies is legal. Grounded
// on the teacher's ContentAnalyzer.SelectOptimalProfile — a chain of small
// select*/has* predicates operating on a shared characteristics struct —
// generalized here to the timeline-classification decision in spec §4.1.
package analyzer

import (
	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// Strategy is the closed, ordered set of rendering strategies, cheap to
// expensive (spec §4.1). Ordering matters: Strategy values compare with <.
type Strategy int

const (
	StrategyDirectCopy Strategy = iota // A
	StrategyNormalize                  // B
	StrategyFilterGraph                // C
	StrategyFrameRender                // D
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirectCopy:
		return "A:direct-copy"
	case StrategyNormalize:
		return "B:normalize"
	case StrategyFilterGraph:
		return "C:filter-graph"
	case StrategyFrameRender:
		return "D:frame-render"
	default:
		return "unknown"
	}
}

// Settings is the export request's rendering target (spec §6).
type Settings struct {
	Width  int
	Height int
	FPS    int
}

// ExportAnalysis is the analyzer's pure output (spec §4.1).
type ExportAnalysis struct {
	Strategy                 Strategy
	CanUseDirectCopy         bool
	Reason                   string
	VideoElementCount        int
	HasOverlappingVideos     bool
	HasTextElements          bool
	HasStickers              bool
	HasImageElements         bool
	HasEffects               bool
	AllVideosHaveLocalPath   bool
	HasMissingCodecMetadata  bool
	VideoSources             []string // MediaItem ids, timeline order
}

// Analyzer runs the decision algorithm. It holds no mutable state; each
// call to Analyze is independent and deterministic for a fixed input,
// per spec §4.1's "no I/O, no subprocess spawn" requirement — any probing
// needed to fill in missing MediaItem metadata must have already happened
// (see internal/mediaprobe) before Analyze is called.
type Analyzer struct {
	Log hclog.Logger
}

func New(log hclog.Logger) *Analyzer {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Analyzer{Log: log.Named("analyzer")}
}

// Analyze runs the left-to-right decision algorithm from spec §4.1.
func (a *Analyzer) Analyze(tl *timeline.Timeline, media timeline.MediaIndex, settings Settings) ExportAnalysis {
	videoElems := tl.VideoElements(media)

	report := ExportAnalysis{
		VideoElementCount: len(videoElems),
	}
	for _, el := range videoElems {
		report.VideoSources = append(report.VideoSources, el.MediaID)
	}

	report.HasOverlappingVideos = hasOverlappingVideos(tl, media)
	report.HasTextElements = hasTrackKind(tl, timeline.TrackText) || hasTrackKind(tl, timeline.TrackCaption)
	report.HasStickers = hasTrackKind(tl, timeline.TrackSticker)
	report.HasImageElements = hasImageElements(tl, media)
	report.HasEffects = hasEffects(videoElems)
	report.AllVideosHaveLocalPath = allHaveLocalPath(videoElems, media)
	report.HasMissingCodecMetadata = anyMissingCodecMetadata(videoElems, media)

	hasOverlays := report.HasTextElements || report.HasStickers || report.HasImageElements
	hasAnyTrim := anyTrimmed(videoElems)

	report.CanUseDirectCopy = canUseDirectCopy(videoElems, media, settings, hasOverlays, report.HasEffects, report.HasOverlappingVideos, hasAnyTrim)

	switch {
	case report.CanUseDirectCopy:
		report.Strategy = StrategyDirectCopy
		report.Reason = "all videos match target codec/pixfmt/resolution/fps, no overlays, no effects, no trims"

	case len(videoElems) > 1 && !hasOverlays && !report.HasEffects && report.AllVideosHaveLocalPath:
		if allMatchTarget(videoElems, media, settings) {
			report.Strategy = StrategyDirectCopy
			report.Reason = "multiple videos, all match target, treated as concat-copy"
			report.CanUseDirectCopy = true
		} else {
			report.Strategy = StrategyNormalize
			report.Reason = "multiple videos with mismatched properties, no overlays/effects"
		}

	case len(videoElems) == 1 && expressibleAsFilters(tl, media, videoElems[0]):
		report.Strategy = StrategyFilterGraph
		report.Reason = "single video with overlays/effects expressible as a filter graph"

	default:
		report.Strategy = StrategyFrameRender
		report.Reason = "fallback: overlapping videos, multiple videos with overlays, or effects not expressible as filters"
	}

	// A media item whose codec could not be probed means the analyzer can't
	// actually confirm the assumption its chosen strategy rests on (codec
	// equality for Direct Copy, a known codec for Normalize's decoder), so
	// the timeline downgrades one step: A→B, B→D (spec §4.1).
	if report.HasMissingCodecMetadata {
		switch report.Strategy {
		case StrategyDirectCopy:
			report.Strategy = StrategyNormalize
			report.CanUseDirectCopy = false
			report.Reason = "downgraded from direct copy: a video media item's codec could not be probed"
		case StrategyNormalize:
			report.Strategy = StrategyFrameRender
			report.Reason = "downgraded from normalize: a video media item's codec could not be probed"
		}
	}

	a.Log.Debug("analysis complete",
		"strategy", report.Strategy.String(),
		"video_count", report.VideoElementCount,
		"overlapping", report.HasOverlappingVideos,
		"overlays", hasOverlays,
		"effects", report.HasEffects)

	return report
}

func hasTrackKind(tl *timeline.Timeline, kind timeline.TrackKind) bool {
	for _, tr := range tl.Tracks {
		if tr.Kind == kind && len(tr.Elements) > 0 {
			return true
		}
	}
	return false
}

func hasImageElements(tl *timeline.Timeline, media timeline.MediaIndex) bool {
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			if el.Kind != timeline.ElementMedia {
				continue
			}
			if item, ok := media[el.MediaID]; ok && item.Kind == timeline.MediaImage {
				return true
			}
		}
	}
	return false
}

func hasEffects(videoElems []*timeline.Element) bool {
	for _, el := range videoElems {
		for _, eff := range el.Effects {
			if eff.Enabled {
				return true
			}
		}
	}
	return false
}

func anyTrimmed(videoElems []*timeline.Element) bool {
	for _, el := range videoElems {
		if el.TrimStart != 0 || el.TrimEnd != 0 {
			return true
		}
	}
	return false
}

// anyMissingCodecMetadata reports whether any video element's media item
// still has no known codec — either the caller never supplied one, or
// internal/mediaprobe tried and failed. This is the signal spec §4.1 means
// by "the analyzer cannot probe a media item's codec."
func anyMissingCodecMetadata(videoElems []*timeline.Element, media timeline.MediaIndex) bool {
	for _, el := range videoElems {
		item, ok := media[el.MediaID]
		if !ok || item.Codec == "" {
			return true
		}
	}
	return false
}

func allHaveLocalPath(videoElems []*timeline.Element, media timeline.MediaIndex) bool {
	for _, el := range videoElems {
		item, ok := media[el.MediaID]
		if !ok || item.Path == "" {
			return false
		}
	}
	return true
}

func allMatchTarget(videoElems []*timeline.Element, media timeline.MediaIndex, settings Settings) bool {
	for _, el := range videoElems {
		item, ok := media[el.MediaID]
		if !ok {
			return false
		}
		if !matchesTarget(item, settings) {
			return false
		}
	}
	return true
}

func matchesTarget(item *timeline.MediaItem, settings Settings) bool {
	return item.Width == settings.Width &&
		item.Height == settings.Height &&
		int(item.FPS+0.5) == settings.FPS
}

// canUseDirectCopy implements spec §4.1's exact Direct Copy predicate: all
// videos share codec/pixFmt/w/h/fps, match the export target, no overlaps,
// no overlays, no effects, and — per spec §9 open question 1 — no trims.
func canUseDirectCopy(videoElems []*timeline.Element, media timeline.MediaIndex, settings Settings, hasOverlays, hasEffects, hasOverlap, hasTrim bool) bool {
	if len(videoElems) == 0 || hasOverlays || hasEffects || hasOverlap || hasTrim {
		return false
	}
	var codec, pixFmt string
	for i, el := range videoElems {
		item, ok := media[el.MediaID]
		if !ok || !matchesTarget(item, settings) {
			return false
		}
		if i == 0 {
			codec, pixFmt = item.Codec, item.PixFmt
			continue
		}
		if item.Codec != codec || item.PixFmt != pixFmt {
			return false
		}
	}
	return true
}

// hasOverlappingVideos reports whether any two media-track elements whose
// MediaItem is a video overlap in time across tracks (spec §3: "across
// tracks, media elements may overlap — this is the signal the analyzer
// uses to downgrade strategies").
func hasOverlappingVideos(tl *timeline.Timeline, media timeline.MediaIndex) bool {
	type span struct{ start, end float64 }
	var spans []span
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			if el.Kind != timeline.ElementMedia {
				continue
			}
			if item, ok := media[el.MediaID]; !ok || item.Kind != timeline.MediaVideo {
				continue
			}
			spans = append(spans, span{start: el.StartTime, end: el.StartTime + el.Duration})
		}
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return true
			}
		}
	}
	return false
}

// expressibleAsFilters reports whether the single video element's overlays
// and effects can all be expressed as FFmpeg filters (Mode C eligibility).
// Per spec §4.5/§4.6, anything the rendering primitive can express that
// filters cannot (animated captions, transitions) forces Mode D; the only
// unsupported shape this implementation recognizes is a caption track,
// which spec.md's Mode C pipeline construction never names a filter for.
func expressibleAsFilters(tl *timeline.Timeline, media timeline.MediaIndex, _ *timeline.Element) bool {
	return !hasTrackKind(tl, timeline.TrackCaption)
}
