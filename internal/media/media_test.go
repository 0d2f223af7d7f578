package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"newsboost-bot/internal/posts"
)

type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) DownloadMedia(ctx context.Context, ref posts.MediaRef, dst string) error {
	args := m.Called(ctx, ref, dst)
	if args.Error(0) == nil {
		_ = os.WriteFile(dst, []byte("source"), 0o644)
	}
	return args.Error(0)
}

type MockTransformer struct {
	mock.Mock
}

func (m *MockTransformer) OverlayImage(ctx context.Context, in, out string, o Overlay) error {
	args := m.Called(ctx, in, out, o)
	if args.Error(0) == nil {
		_ = os.WriteFile(out, []byte("marked"), 0o644)
	}
	return args.Error(0)
}

func (m *MockTransformer) OverlayVideo(ctx context.Context, in, out string, o Overlay) error {
	args := m.Called(ctx, in, out, o)
	if args.Error(0) == nil {
		_ = os.WriteFile(out, []byte("marked"), 0o644)
	}
	return args.Error(0)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace should be removed")
}

func TestCoordinatorWatermarksAndCleansUp(t *testing.T) {
	base := t.TempDir()
	dl := new(MockDownloader)
	tr := new(MockTransformer)
	overlay := Overlay{Watermark: "wm.png", Position: TopRight, MarginPx: 20, WidthPercent: 18}
	c := NewCoordinator(Config{Enabled: true, Overlay: overlay, TempDir: base}, dl, tr)

	items := []posts.MediaRef{
		{Kind: posts.KindPhoto, FileID: "p1"},
		{Kind: posts.KindVideo, FileID: "v1"},
		{Kind: posts.KindDocument, FileID: "d1", FileName: "report.pdf"},
	}
	dl.On("DownloadMedia", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
	tr.On("OverlayImage", mock.Anything, mock.Anything, mock.Anything, overlay).Return(nil).Once()
	tr.On("OverlayVideo", mock.Anything, mock.Anything, mock.Anything, overlay).Return(nil).Once()

	var seen []Artifact
	err := c.With(context.Background(), -100, 7, items, func(arts []Artifact) error {
		seen = arts
		for _, a := range arts {
			if a.Local() {
				_, statErr := os.Stat(a.Path)
				assert.NoError(t, statErr, "artifact must exist while fn runs")
				assert.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(a.Path)), "post--100-7-"))
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Transformed)
	assert.True(t, seen[1].Transformed)
	assert.False(t, seen[2].Transformed)
	assert.Equal(t, "d1", seen[2].FileID)
	assertEmptyDir(t, base)
	dl.AssertExpectations(t)
	tr.AssertExpectations(t)
}

func TestCoordinatorFallsBackOnTransformFailure(t *testing.T) {
	base := t.TempDir()
	dl := new(MockDownloader)
	tr := new(MockTransformer)
	c := NewCoordinator(Config{Enabled: true, TempDir: base}, dl, tr)

	dl.On("DownloadMedia", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	tr.On("OverlayImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bad image")).Once()

	deliveryErr := errors.New("delivery failed")
	err := c.With(context.Background(), 1, 2, []posts.MediaRef{{Kind: posts.KindPhoto, FileID: "p1"}}, func(arts []Artifact) error {
		require.Len(t, arts, 1)
		assert.False(t, arts[0].Transformed)
		assert.Equal(t, "p1", arts[0].FileID)
		return deliveryErr
	})
	assert.ErrorIs(t, err, deliveryErr)
	assertEmptyDir(t, base)
}

func TestCoordinatorFallsBackOnDownloadFailure(t *testing.T) {
	base := t.TempDir()
	dl := new(MockDownloader)
	tr := new(MockTransformer)
	c := NewCoordinator(Config{Enabled: true, TempDir: base}, dl, tr)

	dl.On("DownloadMedia", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("too big")).Once()

	err := c.With(context.Background(), 1, 2, []posts.MediaRef{{Kind: posts.KindAnimation, FileID: "a1"}}, func(arts []Artifact) error {
		assert.Equal(t, []Artifact{{Kind: posts.KindAnimation, FileID: "a1"}}, arts)
		return nil
	})
	require.NoError(t, err)
	tr.AssertNotCalled(t, "OverlayVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assertEmptyDir(t, base)
}

func TestCoordinatorDisabledPassesThrough(t *testing.T) {
	dl := new(MockDownloader)
	c := NewCoordinator(Config{Enabled: true}, dl, nil)
	assert.False(t, c.Enabled())

	err := c.With(context.Background(), 1, 2, []posts.MediaRef{{Kind: posts.KindPhoto, FileID: "p1"}}, func(arts []Artifact) error {
		assert.Equal(t, "p1", arts[0].FileID)
		assert.False(t, arts[0].Local())
		return nil
	})
	require.NoError(t, err)
	dl.AssertNotCalled(t, "DownloadMedia", mock.Anything, mock.Anything, mock.Anything)
}

func TestOffset(t *testing.T) {
	frame := image.Pt(1000, 500)
	mark := image.Pt(100, 50)
	assert.Equal(t, image.Pt(880, 20), Offset(TopRight, frame, mark, 20))
	assert.Equal(t, image.Pt(20, 20), Offset(TopLeft, frame, mark, 20))
	assert.Equal(t, image.Pt(20, 430), Offset(BottomLeft, frame, mark, 20))
	assert.Equal(t, image.Pt(880, 430), Offset(BottomRight, frame, mark, 20))
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("Bottom-Left")
	require.NoError(t, err)
	assert.Equal(t, BottomLeft, p)

	p, err = ParsePosition("")
	require.NoError(t, err)
	assert.Equal(t, TopRight, p)

	_, err = ParsePosition("center")
	assert.Error(t, err)
}

func TestFFmpegArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	tr := &FFmpegTransformer{Binary: "ffmpeg", Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}}
	o := Overlay{Watermark: "wm.png", Position: BottomLeft, MarginPx: 12, WidthPercent: 18}
	require.NoError(t, tr.OverlayVideo(context.Background(), "in.mp4", "out.mp4", o))

	assert.Equal(t, "ffmpeg", gotName)
	assert.Contains(t, gotArgs, "[1][0]scale2ref=w=rw*18/100:h=ow/a[wm][vid];[vid][wm]overlay=12:H-h-12[out]")
	assert.Equal(t, "out.mp4", gotArgs[len(gotArgs)-1])
}

func TestFFmpegFailureIncludesOutput(t *testing.T) {
	tr := &FFmpegTransformer{Binary: "ffmpeg", Run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found\n"), errors.New("exit status 1")
	}}
	err := tr.OverlayVideo(context.Background(), "in.mp4", "out.mp4", Overlay{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestImagingTransformerPlacesMark(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	wm := filepath.Join(dir, "wm.png")
	out := filepath.Join(dir, "out.jpg")
	require.NoError(t, imaging.Save(imaging.New(200, 100, color.White), in))
	require.NoError(t, imaging.Save(imaging.New(10, 10, color.NRGBA{R: 255, A: 255}), wm))

	o := Overlay{Watermark: wm, Position: TopRight, MarginPx: 5, WidthPercent: 10}
	require.NoError(t, ImagingTransformer{}.OverlayImage(context.Background(), in, out, o))

	img, err := imaging.Open(out)
	require.NoError(t, err)
	r, g, _, _ := img.At(185, 15).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(80))

	_, g, _, _ = img.At(20, 80).RGBA()
	assert.Greater(t, g>>8, uint32(200), "far corner stays white")
}
