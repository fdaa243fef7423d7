// Package filtergraph compiles parameterized visual effects and overlay
// placements into FFmpeg filter-expression strings (spec §4.7). Every
// function here is pure: no I/O, no subprocess spawn, deterministic for a
// given input. Grounded on the teacher's buildScaleFilter/buildVideoCodecArgs
// style (string-builder helpers assembled from a small fixed vocabulary) in
// ffmpeg_transcoder's services/ffmpeg.go.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// CompileEffects turns an ordered list of effect bindings into a single
// comma-joined filter chain (spec §4.7's exact expression table). Effects
// compose in the slice's order — never map iteration order (spec §9 open
// question 3). Disabled effects are skipped. An empty result means "no -vf
// argument", per spec §4.7.
func CompileEffects(effects []timeline.EffectInstance) string {
	var parts []string
	for _, e := range effects {
		if !e.Enabled {
			continue
		}
		if expr := compileOne(e); expr != "" {
			parts = append(parts, expr)
		}
	}
	return strings.Join(parts, ",")
}

func compileOne(e timeline.EffectInstance) string {
	switch e.Kind {
	case timeline.EffectBrightness:
		return fmt.Sprintf("eq=brightness=%s", ratio(e.Value, 100))
	case timeline.EffectContrast:
		return fmt.Sprintf("eq=contrast=%s", onePlusRatio(e.Value, 100))
	case timeline.EffectSaturation:
		return fmt.Sprintf("eq=saturation=%s", onePlusRatio(e.Value, 100))
	case timeline.EffectHue:
		return fmt.Sprintf("hue=h=%s", trimFloat(e.Value))
	case timeline.EffectBlur:
		return fmt.Sprintf("boxblur=%s:1", trimFloat(e.Value))
	case timeline.EffectGrayscale:
		return fmt.Sprintf("hue=s=%s", oneMinusRatio(e.Value, 100))
	default:
		return ""
	}
}

func ratio(v, scale float64) string        { return trimFloat(v / scale) }
func onePlusRatio(v, scale float64) string { return trimFloat(1 + v/scale) }
func oneMinusRatio(v, scale float64) string { return trimFloat(1 - v/scale) }

// trimFloat formats a float with the minimum digits FFmpeg's expression
// parser needs, avoiding "20.000000"-style noise in generated filter
// strings (and in test assertions against them).
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DrawtextFilter builds a drawtext filter node for a text element. Colon,
// backslash, and single-quote characters in content/font path are escaped
// per spec §4.5 ("escaping of colons, backslashes, and single quotes is
// mandatory").
func DrawtextFilter(text, fontFile, fontColor string, fontSize int, x, y float64, startTime, endTime float64) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	fmt.Fprintf(&b, "fontfile='%s':", escapeFilterArg(fontFile))
	fmt.Fprintf(&b, "text='%s':", escapeFilterArg(text))
	fmt.Fprintf(&b, "fontcolor=%s:fontsize=%d:", fontColor, fontSize)
	fmt.Fprintf(&b, "x=%s:y=%s:", trimFloat(x), trimFloat(y))
	fmt.Fprintf(&b, "enable='between(t\\,%s\\,%s)'", trimFloat(startTime), trimFloat(endTime))
	return b.String()
}

// OverlayFilter builds an overlay node placing `label` over `base`,
// producing `outLabel`, active only in [start,end) (spec §4.5).
func OverlayFilter(base, label, outLabel string, x, y float64, start, end float64) string {
	return fmt.Sprintf("[%s][%s]overlay=%s:%s:enable='between(t\\,%s\\,%s)'[%s]",
		base, label, trimFloat(x), trimFloat(y), trimFloat(start), trimFloat(end), outLabel)
}

// TransformPreamble builds the rotate/scale/opacity preamble FFmpeg needs
// before an overlay can be composited (spec §4.5: "transform via rotate,
// scale, format=rgba,colorchannelmixer=aa=opacity preamble").
func TransformPreamble(width, height int, rotationDeg, opacity float64) []string {
	var filters []string
	if width > 0 && height > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:%d", width, height))
	}
	if rotationDeg != 0 {
		filters = append(filters, fmt.Sprintf("rotate=%s*PI/180", trimFloat(rotationDeg)))
	}
	if opacity < 1 {
		filters = append(filters, "format=rgba", fmt.Sprintf("colorchannelmixer=aa=%s", trimFloat(opacity)))
	}
	return filters
}

// escapeFilterArg escapes backslashes, single quotes, and colons for safe
// embedding inside a single-quoted filter option value.
func escapeFilterArg(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
	)
	return r.Replace(s)
}
