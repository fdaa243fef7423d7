// Package modes implements the four export strategies (spec §4.2-4.6):
// Direct Copy, Normalization, Single-Input Filter Graph, and Frame
// Rendering. Each mode is a Producer that renders a Request to
// Request.OutputPath using the shared ffmpegproc.Driver and session.Session.
package modes

import (
	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// FontResolver resolves a font family name to an absolute font file path,
// supplied by the excluded UI/project layer (spec §6: "fonts : fn(family)
// -> absolute font file path").
type FontResolver func(family string) string

// Request bundles everything a mode needs to render one export.
type Request struct {
	Timeline   *timeline.Timeline
	Media      timeline.MediaIndex
	Settings   analyzer.Settings
	OutputPath string
	Quality    int // CRF-facing quality, 0-100 (spec §6)
	Fonts      FontResolver
}
