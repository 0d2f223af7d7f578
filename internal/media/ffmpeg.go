package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FFmpegTransformer watermarks videos and animations with an ffmpeg filter graph.
type FFmpegTransformer struct {
	Binary string
	Run    CommandRunner
}

// NewFFmpegTransformer uses binary ("ffmpeg" when empty) from PATH.
func NewFFmpegTransformer(binary string) *FFmpegTransformer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTransformer{Binary: binary, Run: execRunner}
}

// Args builds the ffmpeg argument list for one overlay.
func (t *FFmpegTransformer) Args(in, out string, o Overlay) []string {
	filter := fmt.Sprintf("[1][0]scale2ref=w=rw*%g/100:h=ow/a[wm][vid];[vid][wm]overlay=%s[out]",
		o.WidthPercent, overlayExpr(o.Position, o.MarginPx))
	return []string{
		"-y", "-loglevel", "error",
		"-i", in,
		"-i", o.Watermark,
		"-filter_complex", filter,
		"-map", "[out]", "-map", "0:a?",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		out,
	}
}

func (t *FFmpegTransformer) OverlayVideo(ctx context.Context, in, out string, o Overlay) error {
	output, err := t.Run(ctx, t.Binary, t.Args(in, out, o)...)
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// OverlayImage is delegated to ImagingTransformer by Watermarker.
func (t *FFmpegTransformer) OverlayImage(context.Context, string, string, Overlay) error {
	return fmt.Errorf("ffmpeg transformer is configured for video only")
}

// Watermarker routes images and videos to their transformers.
type Watermarker struct {
	Images Transformer
	Videos Transformer
}

func (w Watermarker) OverlayImage(ctx context.Context, in, out string, o Overlay) error {
	return w.Images.OverlayImage(ctx, in, out, o)
}

func (w Watermarker) OverlayVideo(ctx context.Context, in, out string, o Overlay) error {
	return w.Videos.OverlayVideo(ctx, in, out, o)
}
