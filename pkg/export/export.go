// Package export is the export core's public entry point (spec §6):
// Request/Outcome types and a single Export(ctx, req) call wiring
// probing, analysis, dispatch, and session lifecycle together. Grounded on
// the teacher's services.FFmpegExecutor.Execute(ctx, args, progressCallback)
// call shape, generalized from "one ffmpeg invocation" to "one full export".
package export

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/config"
	"github.com/Quriosity-agent/qcut-sub014/internal/dispatcher"
	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/historydb"
	"github.com/Quriosity-agent/qcut-sub014/internal/mediaprobe"
	"github.com/Quriosity-agent/qcut-sub014/internal/modes"
	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
)

// Quality is the caller-facing tier from spec §6; CRFFromQuality expects a
// 0-100 scale, so each tier maps to a representative point on that scale.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

func (q Quality) toScale() int {
	switch q {
	case QualityHigh:
		return 90
	case QualityLow:
		return 20
	default:
		return 55
	}
}

// Progress is one progress event (spec §6: "sink for {percent, message}").
type Progress struct {
	Percent float64
	Message string
}

// ProgressSink receives progress events. Implementations must not block;
// callers needing push delivery should buffer internally (e.g. a channel
// with a select-based send), matching the teacher's
// ProgressCallback func(jobID string, progress *Progress) shape generalized
// to an interface so push and pull consumers can both implement it.
type ProgressSink interface {
	OnProgress(p Progress)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// Renderer produces one RGBA-encoded frame at timestamp t seconds, the
// frame-source capability Mode D consumes (spec §6: "renderer : frame-source
// capability (Mode D only) — fn(t:float) -> rgba bytes"). It lives entirely
// outside the export core; this package only adapts its pull-per-timestamp
// shape into Mode D's push-over-channel FrameSource.
type Renderer func(t float64) (rgba []byte, err error)

// Request is one export's full input (spec §6).
type Request struct {
	Timeline   *timeline.Timeline
	Media      timeline.MediaIndex
	Width      int
	Height     int
	FPS        int
	OutputPath string
	Quality    Quality
	Fonts      modes.FontResolver
	Renderer   Renderer // required only if the analyzer falls through to Mode D
	Progress   ProgressSink
}

// OutcomeKind discriminates the closed Outcome union (spec §6).
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeTimedOut  OutcomeKind = "timed_out"
)

// Outcome is the export's terminal result (spec §6:
// "Success{outputPath}, Failed{reason,stderrTail}, Cancelled, TimedOut").
type Outcome struct {
	Kind       OutcomeKind
	OutputPath string
	Reason     string
	StderrTail string
	Strategy   analyzer.Strategy
}

// Core wires the export pipeline's components together. Build one with New
// and reuse it across exports — every call to Export still gets its own
// Session, never shared mutable state.
type Core struct {
	cfg      *config.Config
	driver   *ffmpegproc.Driver
	prober   *mediaprobe.Prober
	analyzer *analyzer.Analyzer
	history  *historydb.Store
	log      hclog.Logger
}

// New builds a Core from cfg. historyPath is passed straight to
// historydb.Open ("" for in-memory, never persisted).
func New(cfg *config.Config, historyPath string, log hclog.Logger) (*Core, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("export")

	registry := ffmpegproc.NewRegistry(log)
	driver := ffmpegproc.NewDriver(cfg.FFmpeg.BinaryPath, cfg.Timeouts.GracefulStop, registry, log)

	store, err := historydb.Open(historyPath, log)
	if err != nil {
		return nil, err
	}

	return &Core{
		cfg:      cfg,
		driver:   driver,
		prober:   mediaprobe.New(cfg.FFmpeg.ProbePath, mediaprobe.ExecRunner{}, log),
		analyzer: analyzer.New(log),
		history:  store,
		log:      log,
	}, nil
}

// Close releases the Core's history database handle.
func (c *Core) Close() error {
	return c.history.Close()
}

// WithExecutor overrides the FFmpeg process driver's Executor, for tests
// that need to fake ffmpeg invocations rather than spawn a real binary.
func (c *Core) WithExecutor(e ffmpegproc.Executor) *Core {
	c.driver.WithExecutor(e)
	return c
}

// Export runs one export end to end: probes any unprobed media, analyzes
// the timeline to pick a starting strategy, runs the dispatcher's A→B→C→D
// downgrade chain under the configured per-mode timeout, and records the
// terminal outcome to the history store before returning. Per spec §7,
// local recovery (downgrade) only happens inside the dispatcher — every
// other failure surfaces here as a structured Outcome.
func (c *Core) Export(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()

	if err := req.Timeline.Validate(req.Media); err != nil {
		return Outcome{Kind: OutcomeFailed, Reason: "invalid timeline: " + err.Error()}, nil
	}

	// Probe into per-export copies so the caller's MediaItems stay unchanged.
	media := make(timeline.MediaIndex, len(req.Media))
	for id, orig := range req.Media {
		item := *orig
		if !item.Probed && item.Codec == "" {
			if err := c.prober.Probe(ctx, &item); err != nil {
				c.log.Warn("media probe failed, analyzer will see unprobed item", "media_id", item.ID, "error", err)
			}
		}
		media[id] = &item
	}

	settings := analyzer.Settings{Width: req.Width, Height: req.Height, FPS: req.FPS}
	analysis := c.analyzer.Analyze(req.Timeline, media, settings)

	sess, err := session.New(session.Options{Root: c.cfg.Session.Root, KeepOnError: c.cfg.Session.KeepOnError}, c.log)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Reason: "failed to create export session: " + err.Error()}, nil
	}

	modeReq := modes.Request{
		Timeline:   req.Timeline,
		Media:      media,
		Settings:   settings,
		OutputPath: req.OutputPath,
		Quality:    req.Quality.toScale(),
		Fonts:      req.Fonts,
	}

	runCtx, cancel := c.withModeTimeout(ctx, analysis.Strategy)
	defer cancel()

	var sinkFactory dispatcher.SinkFactory
	if req.Progress != nil {
		total := timelineDuration(req.Timeline)
		sinkFactory = func(strategy analyzer.Strategy) ffmpegproc.ProgressSink {
			return c.wrapProgress(req.Progress, strategy, total)
		}
	}

	frameSourceFactory := c.frameSourceFactory(req.Renderer)
	d := dispatcher.New(c.driver, c.cfg.Performance.MaxNormalizeWorkers, frameSourceFactory, c.log)
	result := d.Run(runCtx, sess, modeReq, analysis.Strategy, sinkFactory)

	outcome := c.toOutcome(result, req.OutputPath)
	_ = sess.Close(outcome.Kind != OutcomeSuccess && c.cfg.Session.KeepOnError)

	c.recordHistory(ctx, sess.ID, result, outcome, time.Since(start))

	if req.Progress != nil {
		c.emitTerminal(req.Progress, outcome)
	}

	return outcome, nil
}

// withModeTimeout applies the configured ceiling for the analyzer's chosen
// starting strategy (spec §5's per-mode TimeoutConfig). A zero timeout
// (Mode D's default) means no ceiling.
func (c *Core) withModeTimeout(ctx context.Context, strategy analyzer.Strategy) (context.Context, context.CancelFunc) {
	var d time.Duration
	switch strategy {
	case analyzer.StrategyDirectCopy:
		d = c.cfg.Timeouts.ModeA
	case analyzer.StrategyNormalize:
		d = c.cfg.Timeouts.ModeB
	case analyzer.StrategyFilterGraph:
		d = c.cfg.Timeouts.ModeC
	case analyzer.StrategyFrameRender:
		d = c.cfg.Timeouts.ModeD
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (c *Core) toOutcome(result dispatcher.Outcome, outputPath string) Outcome {
	if result.OutputErr == nil {
		return Outcome{Kind: OutcomeSuccess, OutputPath: outputPath, Strategy: result.Strategy}
	}

	kind := qcuterrors.KindOf(result.OutputErr)
	stderrTail := ""
	if qerr, ok := result.OutputErr.(*qcuterrors.Error); ok {
		stderrTail = qerr.StderrTail
	}

	switch kind {
	case qcuterrors.KindCancelled:
		return Outcome{Kind: OutcomeCancelled, Reason: result.OutputErr.Error(), Strategy: result.Strategy}
	case qcuterrors.KindTimeout:
		return Outcome{Kind: OutcomeTimedOut, Reason: result.OutputErr.Error(), Strategy: result.Strategy}
	default:
		return Outcome{
			Kind:       OutcomeFailed,
			Reason:     result.OutputErr.Error(),
			StderrTail: stderrTail,
			Strategy:   result.Strategy,
		}
	}
}

func (c *Core) recordHistory(ctx context.Context, sessionID string, result dispatcher.Outcome, outcome Outcome, dur time.Duration) {
	rec := historydb.Record{
		ID:         sessionID,
		SessionID:  sessionID,
		Strategy:   result.Strategy.String(),
		Outcome:    string(outcome.Kind),
		DurationMS: dur.Milliseconds(),
		StderrTail: outcome.StderrTail,
		Error:      outcome.Reason,
	}
	if err := c.history.Record(ctx, rec); err != nil {
		c.log.Warn("failed to record export history", "session_id", sessionID, "error", err)
	}
}

// wrapProgress adapts the caller's ProgressSink to ffmpegproc.ProgressSink,
// bound to one strategy attempt. FFmpeg's stderr never reports a direct
// percent, so it's derived from the parsed Time token against the
// timeline's total duration. The dispatcher calls this fresh (via
// dispatcher.SinkFactory) before every attempt, so a downgrade naturally
// resets percent to 0 with a message naming the new mode (spec §7).
func (c *Core) wrapProgress(sink ProgressSink, strategy analyzer.Strategy, totalDuration float64) ffmpegproc.ProgressSink {
	return func(p ffmpegproc.Progress) {
		percent := 0.0
		if totalDuration > 0 {
			percent = (p.Time.Seconds() / totalDuration) * 100
			if percent > 100 {
				percent = 100
			}
		}
		sink.OnProgress(Progress{Percent: percent, Message: strategy.String()})
	}
}

// timelineDuration takes the latest end time of any media-track element as
// the export's total output duration, for percent-progress calculation.
func timelineDuration(tl *timeline.Timeline) float64 {
	var maxEnd float64
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			end := el.StartTime + el.Duration
			if end > maxEnd {
				maxEnd = end
			}
		}
	}
	return maxEnd
}

func (c *Core) emitTerminal(sink ProgressSink, outcome Outcome) {
	switch outcome.Kind {
	case OutcomeCancelled:
		sink.OnProgress(Progress{Message: "Cancelled"})
	case OutcomeFailed:
		sink.OnProgress(Progress{Message: "Failed: " + outcome.Reason})
	case OutcomeTimedOut:
		sink.OnProgress(Progress{Message: "Failed: timed out"})
	}
}
