package ffmpegproc

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"time"
)

// Progress is one parsed FFmpeg `-progress`/stderr status line (spec §5.3).
type Progress struct {
	Frame   int64
	FPS     float64
	Size    string
	Time    time.Duration
	Bitrate string
	Speed   float64
}

var (
	frameRegex   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRegex     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	sizeRegex    = regexp.MustCompile(`size=\s*(\S+)`)
	timeRegex    = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2}\.\d+)`)
	bitrateRegex = regexp.MustCompile(`bitrate=\s*([\d.]+\w*/s)`)
	speedRegex   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ProgressSink receives progress updates as they're parsed off stderr.
// Implementations must not block: the scanning goroutine calls Sink
// synchronously per line (spec §5.3's progress reporting requirement).
type ProgressSink func(Progress)

// scanProgress reads FFmpeg's human-readable stderr status lines (not the
// machine `-progress file:` format, since the driver streams stderr anyway
// for error-tail capture) and reports every line that yields at least one
// recognized token.
func scanProgress(r io.Reader, sink ProgressSink) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		var p Progress
		matched := false

		if m := frameRegex.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				p.Frame = v
				matched = true
			}
		}
		if m := fpsRegex.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.FPS = v
				matched = true
			}
		}
		if m := sizeRegex.FindStringSubmatch(line); m != nil {
			p.Size = m[1]
			matched = true
		}
		if m := timeRegex.FindStringSubmatch(line); m != nil {
			hours, _ := strconv.Atoi(m[1])
			minutes, _ := strconv.Atoi(m[2])
			seconds, _ := strconv.ParseFloat(m[3], 64)
			p.Time = time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))
			matched = true
		}
		if m := bitrateRegex.FindStringSubmatch(line); m != nil {
			p.Bitrate = m[1]
			matched = true
		}
		if m := speedRegex.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.Speed = v
				matched = true
			}
		}

		if matched && sink != nil {
			sink(p)
		}
	}
}
