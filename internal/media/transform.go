package media

import (
	"context"
	"fmt"
	"image"
	"strings"

	"newsboost-bot/internal/posts"
)

// Position is the watermark corner.
type Position string

const (
	TopRight    Position = "top-right"
	BottomRight Position = "bottom-right"
	BottomLeft  Position = "bottom-left"
	TopLeft     Position = "top-left"
)

// ParsePosition accepts the four corner names, case-insensitively.
func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case TopRight, BottomRight, BottomLeft, TopLeft:
		return p, nil
	case "":
		return TopRight, nil
	}
	return "", fmt.Errorf("unknown watermark position %q", s)
}

// Overlay describes one watermark application.
type Overlay struct {
	Watermark    string
	Position     Position
	MarginPx     int
	WidthPercent float64
}

// Transformer burns a watermark into media files.
type Transformer interface {
	OverlayImage(ctx context.Context, in, out string, o Overlay) error
	OverlayVideo(ctx context.Context, in, out string, o Overlay) error
}

// Offset returns the top-left point of a mark of size mark placed in the
// given corner of a frame of size frame, margin pixels from both edges.
func Offset(p Position, frame, mark image.Point, margin int) image.Point {
	right := frame.X - mark.X - margin
	bottom := frame.Y - mark.Y - margin
	switch p {
	case TopLeft:
		return image.Pt(margin, margin)
	case BottomLeft:
		return image.Pt(margin, bottom)
	case BottomRight:
		return image.Pt(right, bottom)
	default:
		return image.Pt(right, margin)
	}
}

// overlayExpr is Offset expressed in ffmpeg overlay filter variables.
func overlayExpr(p Position, margin int) string {
	m := fmt.Sprint(margin)
	switch p {
	case TopLeft:
		return m + ":" + m
	case BottomLeft:
		return m + ":H-h-" + m
	case BottomRight:
		return "W-w-" + m + ":H-h-" + m
	default:
		return "W-w-" + m + ":" + m
	}
}

func outputExt(kind posts.MediaKind) string {
	if kind == posts.KindPhoto {
		return ".jpg"
	}
	return ".mp4"
}
