package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"

	"newsboost-bot/internal/posts"
)

// Artifact is one media item ready for delivery. Either Path (a local file
// produced by the pipeline) or FileID (reuse of the platform copy) is set.
type Artifact struct {
	Kind        posts.MediaKind
	FileID      string
	Path        string
	FileName    string
	Transformed bool
}

// Local reports whether the artifact must be uploaded from disk.
func (a Artifact) Local() bool {
	return a.Path != ""
}

// Downloader fetches platform media into a local file.
type Downloader interface {
	DownloadMedia(ctx context.Context, ref posts.MediaRef, dst string) error
}

// Config controls the coordinator.
type Config struct {
	Enabled bool
	Overlay Overlay
	// TempDir is the parent of per-post workspaces; os.TempDir() when empty.
	TempDir string
}

// Coordinator prepares media for delivery inside a scoped workspace.
type Coordinator struct {
	cfg         Config
	downloader  Downloader
	transformer Transformer
	now         func() time.Time
}

// NewCoordinator creates a coordinator. transformer may be nil when watermarking is disabled.
func NewCoordinator(cfg Config, downloader Downloader, transformer Transformer) *Coordinator {
	if transformer == nil {
		cfg.Enabled = false
	}
	return &Coordinator{cfg: cfg, downloader: downloader, transformer: transformer, now: time.Now}
}

// Enabled reports whether media will be watermarked.
func (c *Coordinator) Enabled() bool {
	return c.cfg.Enabled
}

// With prepares items and calls fn with the artifacts. Every file created for
// the call is removed before With returns, whatever fn or the transforms did.
func (c *Coordinator) With(ctx context.Context, chatID int64, messageID int, items []posts.MediaRef, fn func([]Artifact) error) error {
	if !c.cfg.Enabled || !anyWatermarkable(items) {
		return fn(passthrough(items))
	}

	pattern := fmt.Sprintf("post-%d-%d-%d-*", chatID, messageID, c.now().UnixNano())
	workspace, err := os.MkdirTemp(c.cfg.TempDir, pattern)
	if err != nil {
		log.Printf("[Media Chat:%d Msg:%d] Failed to create workspace, sending originals: %v", chatID, messageID, err)
		return fn(passthrough(items))
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Printf("[Media Chat:%d Msg:%d] Failed to remove workspace %s: %v", chatID, messageID, workspace, err)
		}
	}()

	artifacts := make([]Artifact, len(items))
	for i, item := range items {
		artifacts[i] = c.prepare(ctx, workspace, i, item, chatID, messageID)
	}
	return fn(artifacts)
}

func (c *Coordinator) prepare(ctx context.Context, workspace string, i int, item posts.MediaRef, chatID int64, messageID int) Artifact {
	original := Artifact{Kind: item.Kind, FileID: item.FileID, FileName: item.FileName}
	if !item.Kind.Watermarkable() {
		return original
	}
	logPrefix := fmt.Sprintf("[Media Chat:%d Msg:%d Item:%d]", chatID, messageID, i)

	src := filepath.Join(workspace, fmt.Sprintf("%02d-src%s", i, outputExt(item.Kind)))
	if err := c.downloader.DownloadMedia(ctx, item, src); err != nil {
		log.Printf("%s Download failed, reusing original: %v", logPrefix, err)
		return original
	}

	out := filepath.Join(workspace, fmt.Sprintf("%02d-wm%s", i, outputExt(item.Kind)))
	var err error
	if item.Kind == posts.KindPhoto {
		err = c.transformer.OverlayImage(ctx, src, out, c.cfg.Overlay)
	} else {
		err = c.transformer.OverlayVideo(ctx, src, out, c.cfg.Overlay)
	}
	if err != nil {
		log.Printf("%s Watermark failed, reusing original: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s watermark failed: %w", logPrefix, err))
		return original
	}
	return Artifact{Kind: item.Kind, Path: out, FileName: item.FileName, Transformed: true}
}

func anyWatermarkable(items []posts.MediaRef) bool {
	for _, item := range items {
		if item.Kind.Watermarkable() {
			return true
		}
	}
	return false
}

func passthrough(items []posts.MediaRef) []Artifact {
	out := make([]Artifact, len(items))
	for i, item := range items {
		out[i] = Artifact{Kind: item.Kind, FileID: item.FileID, FileName: item.FileName}
	}
	return out
}
