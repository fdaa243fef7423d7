// Package mediaprobe fills in MediaItem metadata the caller didn't supply,
// by shelling out to ffprobe for its JSON stream/format report. Grounded on
// the teacher's ContentAnalyzer.AnalyzeContent (ffmpeg_transcoder plugin),
// which probes the same way for its transcoding-profile decision.
package mediaprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// Runner executes a command and returns its combined/standard output. A
// thin seam so tests can fake ffprobe's JSON without a real binary, in the
// style of the teacher's CommandRunner interface.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober fills in missing MediaItem fields via ffprobe.
type Prober struct {
	ProbePath string
	Runner    Runner
	Log       hclog.Logger
}

func New(probePath string, runner Runner, log hclog.Logger) *Prober {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Prober{ProbePath: probePath, Runner: runner, Log: log.Named("mediaprobe")}
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe sets Codec/PixFmt/Width/Height/FPS/Duration/SampleRate/Channels on
// item from ffprobe's report, replacing any values already there; fields
// ffprobe does not report are left unchanged. It returns an error of
// qcuterrors.KindMissingDependency if ffprobe cannot be run or its output
// cannot be parsed. Per spec §4.1, a probe failure is what triggers the
// analyzer's one-step downgrade — it is the caller's job to catch that and
// downgrade, not this function's.
func (p *Prober) Probe(ctx context.Context, item *timeline.MediaItem) error {
	out, err := p.Runner.Run(ctx, p.ProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		item.Path,
	)
	if err != nil {
		p.Log.Warn("ffprobe failed", "path", item.Path, "error", err)
		return qcuterrors.Wrap(qcuterrors.KindMissingDependency, "ffprobe failed for "+item.Path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return qcuterrors.Wrap(qcuterrors.KindMissingDependency, "ffprobe output unparseable for "+item.Path, err)
	}

	if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		item.Duration = dur
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			item.Codec = s.CodecName
			item.PixFmt = s.PixFmt
			item.Width = s.Width
			item.Height = s.Height
			item.FPS = parseRational(s.RFrameRate)
		case "audio":
			if rate, err := strconv.Atoi(s.SampleRate); err == nil {
				item.SampleRate = rate
			}
			item.Channels = s.Channels
		}
	}

	item.Probed = true
	return nil
}

// parseRational parses ffprobe's "30000/1001" style frame-rate strings.
func parseRational(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0
	}
	return num / den
}

// Describe returns a short diagnostic string for logging/errors.
func Describe(item *timeline.MediaItem) string {
	return fmt.Sprintf("%s (%dx%d@%.3ffps %s/%s)", item.ID, item.Width, item.Height, item.FPS, item.Codec, item.PixFmt)
}
