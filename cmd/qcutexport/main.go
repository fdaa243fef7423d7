// Command qcutexport renders one export request to an MP4 file. It reads a
// JSON request from a file or stdin, runs it through the export core, and
// prints the terminal outcome. Grounded on the teacher's cmd/viewra/main.go
// startup-banner-then-run shape, generalized from "start an HTTP server"
// to "run one job and exit" since this binary has no long-lived listener.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/config"
	"github.com/Quriosity-agent/qcut-sub014/internal/timeline"
	"github.com/Quriosity-agent/qcut-sub014/pkg/export"
)

// requestFile is the on-disk shape a caller supplies: a Timeline plus its
// MediaIndex plus the render settings spec §6 groups under "settings".
type requestFile struct {
	Timeline timeline.Timeline   `json:"timeline"`
	Media    timeline.MediaIndex `json:"media"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	FPS      int                 `json:"fps"`
	Quality  string              `json:"quality"` // "high"|"medium"|"low"
}

func main() {
	requestPath := flag.String("request", "", "path to the export request JSON file (defaults to stdin)")
	outputPath := flag.String("output", "", "output MP4 path (required)")
	configPath := flag.String("config", "", "optional YAML config file overriding defaults")
	historyPath := flag.String("history", "", "path to the export history sqlite file (empty = in-memory only)")
	flag.Parse()

	if *outputPath == "" {
		fmt.Fprintln(os.Stderr, "qcutexport: -output is required")
		os.Exit(2)
	}

	log := hclog.New(&hclog.LoggerOptions{Name: "qcutexport", Level: hclog.Info})

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	req, err := readRequest(*requestPath)
	if err != nil {
		log.Error("failed to read export request", "error", err)
		os.Exit(1)
	}
	req.OutputPath = *outputPath
	req.Progress = export.ProgressFunc(func(p export.Progress) {
		log.Info("progress", "percent", fmt.Sprintf("%.1f", p.Percent), "message", p.Message)
	})

	core, err := export.New(cfg, *historyPath, log)
	if err != nil {
		log.Error("failed to initialize export core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Warn("received interrupt, cancelling export")
		cancel()
	}()

	outcome, err := core.Export(ctx, req)
	if err != nil {
		log.Error("export failed unexpectedly", "error", err)
		os.Exit(1)
	}

	switch outcome.Kind {
	case export.OutcomeSuccess:
		log.Info("export succeeded", "strategy", outcome.Strategy.String(), "output", outcome.OutputPath)
	case export.OutcomeCancelled:
		log.Warn("export cancelled")
		os.Exit(130)
	case export.OutcomeTimedOut:
		log.Error("export timed out", "strategy", outcome.Strategy.String())
		os.Exit(1)
	default:
		log.Error("export failed", "reason", outcome.Reason, "stderr_tail", outcome.StderrTail)
		os.Exit(1)
	}
}

func readRequest(path string) (export.Request, error) {
	var r io.Reader
	if path == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return export.Request{}, err
		}
		defer f.Close()
		r = f
	}

	var rf requestFile
	if err := json.NewDecoder(r).Decode(&rf); err != nil {
		return export.Request{}, fmt.Errorf("parse request: %w", err)
	}

	return export.Request{
		Timeline: &rf.Timeline,
		Media:    rf.Media,
		Width:    rf.Width,
		Height:   rf.Height,
		FPS:      rf.FPS,
		Quality:  export.Quality(rf.Quality),
	}, nil
}
