package export

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/Quriosity-agent/qcut-sub014/internal/dispatcher"
	"github.com/Quriosity-agent/qcut-sub014/internal/modes"
	"github.com/Quriosity-agent/qcut-sub014/internal/qcuterrors"
)

// frameSourceFactory adapts a caller-supplied Renderer (pull one RGBA frame
// per timestamp) into the channel-based modes.FrameSource Mode D consumes.
// PNG encoding happens here via the standard image/png package — no
// corpus example ships a custom PNG encoder, and ffmpeg's image2pipe input
// expects standalone PNG frames, so the standard library's encoder is used.
func (c *Core) frameSourceFactory(renderer Renderer) dispatcher.FrameSourceFactory {
	if renderer == nil {
		return nil
	}
	return func(req modes.Request) (modes.FrameSource, error) {
		return &rendererFrameSource{renderer: renderer, req: req}, nil
	}
}

type rendererFrameSource struct {
	renderer Renderer
	req      modes.Request
}

func (s *rendererFrameSource) Frames(ctx context.Context) (<-chan modes.Frame, <-chan error) {
	out := make(chan modes.Frame)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		fps := s.req.Settings.FPS
		if fps <= 0 {
			fps = 30
		}
		total := timelineDuration(s.req.Timeline)
		frameCount := int(total * float64(fps))

		for i := 0; i < frameCount; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			t := float64(i) / float64(fps)
			rgba, err := s.renderer(t)
			if err != nil {
				errc <- err
				return
			}

			pngBytes, err := encodePNG(rgba, s.req.Settings.Width, s.req.Settings.Height)
			if err != nil {
				errc <- qcuterrors.Wrap(qcuterrors.KindFrameSource, "failed to encode rendered frame", err)
				return
			}

			select {
			case out <- modes.Frame{Index: i, PNG: pngBytes}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

func encodePNG(rgba []byte, width, height int) ([]byte, error) {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
