package media

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// ImagingTransformer watermarks still images in-process.
type ImagingTransformer struct {
	JPEGQuality int
}

func (t ImagingTransformer) OverlayImage(ctx context.Context, in, out string, o Overlay) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", in, err)
	}
	mark, err := imaging.Open(o.Watermark)
	if err != nil {
		return fmt.Errorf("failed to open watermark %s: %w", o.Watermark, err)
	}

	width := int(float64(src.Bounds().Dx()) * o.WidthPercent / 100)
	if width < 1 {
		width = 1
	}
	mark = imaging.Resize(mark, width, 0, imaging.Lanczos)
	pos := Offset(o.Position, src.Bounds().Size(), mark.Bounds().Size(), o.MarginPx)

	quality := t.JPEGQuality
	if quality == 0 {
		quality = 90
	}
	if err := imaging.Save(imaging.Overlay(src, mark, pos, 1.0), out, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to save watermarked image %s: %w", out, err)
	}
	return nil
}

// OverlayVideo is not supported in-process.
func (t ImagingTransformer) OverlayVideo(context.Context, string, string, Overlay) error {
	return fmt.Errorf("imaging transformer cannot process video")
}
