package modes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/Quriosity-agent/qcut-sub014/internal/ffmpegproc"
	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
	"github.com/Quriosity-agent/qcut-sub014/internal/session"
)

// DirectCopy implements Mode A (spec §4.2): a concat-demuxer "-c copy"
// remux of the timeline's video elements, with no re-encode. Only legal
// when the Export Analyzer reports CanUseDirectCopy. Grounded on
// kartoza-video-processor's concatenateParts (concat-list-file + `-f
// concat -safe 0 -c copy`) and cross-checked against the teacher's
// container-args switch for the final `-y`/output handling.
type DirectCopy struct {
	Driver *ffmpegproc.Driver
	Log    hclog.Logger
}

func NewDirectCopy(driver *ffmpegproc.Driver, log hclog.Logger) *DirectCopy {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &DirectCopy{Driver: driver, Log: log.Named("modes.direct_copy")}
}

func (m *DirectCopy) Produce(ctx context.Context, sess *session.Session, req Request, sessionID string, sink ffmpegproc.ProgressSink) error {
	elems := req.Timeline.VideoElements(req.Media)
	if len(elems) == 0 {
		return qcuterrors.New(qcuterrors.KindInvalidTimeline, "direct copy requires at least one video element")
	}

	listPath := filepath.Join(sess.Root, "concat-list.txt")
	var b strings.Builder
	for _, el := range elems {
		item, ok := req.Media[el.MediaID]
		if !ok {
			return qcuterrors.New(qcuterrors.KindInvalidTimeline, fmt.Sprintf("media %q not found", el.MediaID))
		}
		escaped := strings.ReplaceAll(item.Path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return qcuterrors.Wrap(qcuterrors.KindIO, "failed to write concat list", err)
	}

	args := []string{
		"-y", "-hide_banner",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		req.OutputPath,
	}

	m.Log.Debug("running direct copy", "clips", len(elems), "output", req.OutputPath)
	_, err := m.Driver.Run(ctx, sessionID, args, sink, nil)
	return err
}
