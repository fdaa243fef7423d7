// Package dispatcher implements the Strategy Dispatcher (spec §4.1/§7): it
// runs the Export Analyzer's chosen strategy inside a Session supplied by
// its caller, and downgrades A→B→C→D whenever a failure's Kind is
// Downgradable. It does not create or remove the Session; pkg/export's
// Core.Export does both around the call to Run. Mode D's failure is
// terminal (spec §4.1: "D has no further fallback").
package dispatcher

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/analyzer"
	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/modes"
	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
)

// Attempt records one strategy attempt's outcome, for history/diagnostics.
type Attempt struct {
	Strategy analyzer.Strategy
	Err      error
}

// Outcome is the dispatcher's final result after the downgrade chain ends.
type Outcome struct {
	Strategy  analyzer.Strategy // the strategy that actually produced the output
	Attempts  []Attempt
	OutputErr error
}

// FrameSourceFactory builds the FrameSource Mode D consumes, deferred until
// Mode D is actually reached since most exports never need it.
type FrameSourceFactory func(req modes.Request) (modes.FrameSource, error)

// Dispatcher runs the downgrade chain starting at the Export Analyzer's
// chosen strategy (spec §4.1's decision tree already picked the cheapest
// legal one; the dispatcher only downgrades on failure, it never upgrades
// or re-derives the starting point).
type Dispatcher struct {
	DirectCopy  *modes.DirectCopy
	Normalize   *modes.Normalize
	FilterGraph *modes.FilterGraph
	FrameRender *modes.FrameRender
	FrameSource FrameSourceFactory
	Log         hclog.Logger
}

func New(driver *ffmpegproc.Driver, maxNormalizeWorkers int, frameSource FrameSourceFactory, log hclog.Logger) *Dispatcher {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("dispatcher")
	return &Dispatcher{
		DirectCopy:  modes.NewDirectCopy(driver, log),
		Normalize:   modes.NewNormalize(driver, maxNormalizeWorkers, log),
		FilterGraph: modes.NewFilterGraph(driver, log),
		FrameRender: modes.NewFrameRender(driver, log),
		FrameSource: frameSource,
		Log:         log,
	}
}

// SinkFactory builds the ProgressSink for one strategy attempt. The
// dispatcher calls it fresh before every attempt (including after a
// downgrade) so percent-complete and the reported mode always reflect the
// strategy actually running, rather than the one the analyzer started with
// (spec §7: "on downgrade, percent resets to 0 with a new message
// indicating the new mode").
type SinkFactory func(strategy analyzer.Strategy) ffmpegproc.ProgressSink

// Run executes req starting at `start`, downgrading through A→B→C→D on any
// Downgradable failure, and returns once a strategy succeeds or Mode D's
// attempt (success or failure) ends the chain.
func (d *Dispatcher) Run(ctx context.Context, sess *session.Session, req modes.Request, start analyzer.Strategy, sinkFactory SinkFactory) Outcome {
	outcome := Outcome{}

	for strategy := start; strategy <= analyzer.StrategyFrameRender; strategy++ {
		if ctx.Err() != nil {
			outcome.OutputErr = qcuterrors.New(qcuterrors.KindCancelled, "export cancelled before strategy attempt")
			return outcome
		}

		var sink ffmpegproc.ProgressSink
		if sinkFactory != nil {
			sink = sinkFactory(strategy)
		}

		err := d.runStrategy(ctx, sess, req, strategy, sink)
		outcome.Attempts = append(outcome.Attempts, Attempt{Strategy: strategy, Err: err})

		if err == nil {
			outcome.Strategy = strategy
			return outcome
		}

		d.Log.Warn("strategy attempt failed", "strategy", strategy.String(), "error", err)

		if strategy == analyzer.StrategyFrameRender || !qcuterrors.KindOf(err).Downgradable() {
			outcome.Strategy = strategy
			outcome.OutputErr = err
			return outcome
		}

		d.Log.Info("downgrading to next strategy", "from", strategy.String(), "to", (strategy + 1).String())
	}

	return outcome
}

func (d *Dispatcher) runStrategy(ctx context.Context, sess *session.Session, req modes.Request, strategy analyzer.Strategy, sink ffmpegproc.ProgressSink) error {
	switch strategy {
	case analyzer.StrategyDirectCopy:
		return d.DirectCopy.Produce(ctx, sess, req, sess.ID, sink)
	case analyzer.StrategyNormalize:
		return d.Normalize.Produce(ctx, sess, req, sess.ID, sink)
	case analyzer.StrategyFilterGraph:
		return d.FilterGraph.Produce(ctx, sess, req, sess.ID, sink)
	case analyzer.StrategyFrameRender:
		if d.FrameSource == nil {
			return qcuterrors.New(qcuterrors.KindFrameSource, "no frame source configured for frame-render mode")
		}
		src, err := d.FrameSource(req)
		if err != nil {
			return qcuterrors.Wrap(qcuterrors.KindFrameSource, "failed to build frame source", err)
		}
		return d.FrameRender.Produce(ctx, sess, req, sess.ID, src, sink)
	default:
		return qcuterrors.New(qcuterrors.KindInvalidTimeline, "unknown strategy")
	}
}
