package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"newsboost-bot/internal/backoff"
	"newsboost-bot/internal/channel"
	"newsboost-bot/internal/media"
	"newsboost-bot/internal/posts"
	"newsboost-bot/pkg/telegoapi"
)

// Options tune the adapter.
type Options struct {
	// RequestsPerSecond paces every outbound API call.
	RequestsPerSecond int
	ParseMode         string
	DisableWebPreview bool
	SupportsStreaming bool
	MaxDownloadBytes  int64
}

// Client implements channel.Client over the Telegram Bot API.
type Client struct {
	bot      telegoapi.BotAPI
	limiter  ratelimit.Limiter
	opts     Options
	download func(url string) ([]byte, error)
}

var _ channel.Client = (*Client)(nil)

// New wraps bot.
func New(bot telegoapi.BotAPI, opts Options) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	return &Client{
		bot:      bot,
		limiter:  ratelimit.New(opts.RequestsPerSecond),
		opts:     opts,
		download: tu.DownloadFile,
	}
}

func (c *Client) linkPreview() *telego.LinkPreviewOptions {
	if !c.opts.DisableWebPreview {
		return nil
	}
	return &telego.LinkPreviewOptions{IsDisabled: true}
}

// EditText replaces the text of a text message with editMessageText.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	c.limiter.Take()
	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:             tu.ID(chatID),
		MessageID:          messageID,
		Text:               text,
		ParseMode:          c.opts.ParseMode,
		LinkPreviewOptions: c.linkPreview(),
	})
	return classify("editMessageText", err)
}

// EditCaption replaces the caption of a media message, keeping the media.
func (c *Client) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	c.limiter.Take()
	_, err := c.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Caption:   caption,
		ParseMode: c.opts.ParseMode,
	})
	return classify("editMessageCaption", err)
}

// EditMedia swaps the media of a message for item, uploading it when local.
func (c *Client) EditMedia(ctx context.Context, chatID int64, messageID int, item media.Artifact, caption string) error {
	file, closeFn, err := inputFile(item)
	if err != nil {
		return err
	}
	defer closeFn()

	c.limiter.Take()
	_, err = c.bot.EditMessageMedia(ctx, &telego.EditMessageMediaParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Media:     c.inputMedia(item.Kind, file, caption),
	})
	return classify("editMessageMedia", err)
}

// SendText posts a text message and returns its id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	c.limiter.Take()
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             tu.ID(chatID),
		Text:               text,
		ParseMode:          c.opts.ParseMode,
		LinkPreviewOptions: c.linkPreview(),
	})
	if err != nil {
		return 0, classify("sendMessage", err)
	}
	return msg.MessageID, nil
}

// SendMedia dispatches to sendPhoto, sendVideo, sendAnimation or sendDocument.
func (c *Client) SendMedia(ctx context.Context, chatID int64, item media.Artifact, caption string) (int, error) {
	file, closeFn, err := inputFile(item)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	c.limiter.Take()
	var (
		msg    *telego.Message
		method string
	)
	switch item.Kind {
	case posts.KindPhoto:
		method = "sendPhoto"
		msg, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID: tu.ID(chatID), Photo: file, Caption: caption, ParseMode: c.opts.ParseMode,
		})
	case posts.KindVideo:
		method = "sendVideo"
		msg, err = c.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID: tu.ID(chatID), Video: file, Caption: caption, ParseMode: c.opts.ParseMode,
			SupportsStreaming: c.opts.SupportsStreaming,
		})
	case posts.KindAnimation:
		method = "sendAnimation"
		msg, err = c.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID: tu.ID(chatID), Animation: file, Caption: caption, ParseMode: c.opts.ParseMode,
		})
	case posts.KindDocument:
		method = "sendDocument"
		msg, err = c.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID: tu.ID(chatID), Document: file, Caption: caption, ParseMode: c.opts.ParseMode,
		})
	default:
		return 0, fmt.Errorf("unsupported media kind %q", item.Kind)
	}
	if err != nil {
		return 0, classify(method, err)
	}
	return msg.MessageID, nil
}

// SendMediaGroup posts items as one album with caption on the first item.
// Telegram accepts two to ten items. The ids are returned in album order.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []media.Artifact, caption string) ([]int, error) {
	group := make([]telego.InputMedia, 0, len(items))
	for i, item := range items {
		file, closeFn, err := inputFile(item)
		if err != nil {
			return nil, err
		}
		defer closeFn()

		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}
		group = append(group, c.inputMedia(item.Kind, file, itemCaption))
	}

	c.limiter.Take()
	sent, err := c.bot.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(chatID), group...))
	if err != nil {
		return nil, classify("sendMediaGroup", err)
	}
	ids := make([]int, len(sent))
	for i, m := range sent {
		ids[i] = m.MessageID
	}
	return ids, nil
}

// DeleteMessage removes a message from the chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	c.limiter.Take()
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: messageID})
	return classify("deleteMessage", err)
}

// DownloadMedia resolves the file path with getFile and stores the bytes at dst.
func (c *Client) DownloadMedia(ctx context.Context, ref posts.MediaRef, dst string) error {
	c.limiter.Take()
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: ref.FileID})
	if err != nil {
		return classify("getFile", err)
	}
	if c.opts.MaxDownloadBytes > 0 && file.FileSize > c.opts.MaxDownloadBytes {
		return fmt.Errorf("file %s is %d bytes, limit is %d", ref.FileID, file.FileSize, c.opts.MaxDownloadBytes)
	}
	data, err := c.download(c.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", ref.FileID, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("failed to store %s: %w", dst, err)
	}
	return nil
}

func (c *Client) inputMedia(kind posts.MediaKind, file telego.InputFile, caption string) telego.InputMedia {
	parseMode := ""
	if caption != "" {
		parseMode = c.opts.ParseMode
	}
	switch kind {
	case posts.KindVideo:
		return &telego.InputMediaVideo{Type: telego.MediaTypeVideo, Media: file, Caption: caption,
			ParseMode: parseMode, SupportsStreaming: c.opts.SupportsStreaming}
	case posts.KindAnimation:
		return &telego.InputMediaAnimation{Type: telego.MediaTypeAnimation, Media: file, Caption: caption, ParseMode: parseMode}
	case posts.KindDocument:
		return &telego.InputMediaDocument{Type: telego.MediaTypeDocument, Media: file, Caption: caption, ParseMode: parseMode}
	default:
		return &telego.InputMediaPhoto{Type: telego.MediaTypePhoto, Media: file, Caption: caption, ParseMode: parseMode}
	}
}

// inputFile opens local artifacts for upload; the returned func closes them.
func inputFile(item media.Artifact) (telego.InputFile, func(), error) {
	if !item.Local() {
		return tu.FileFromID(item.FileID), func() {}, nil
	}
	f, err := os.Open(item.Path)
	if err != nil {
		return telego.InputFile{}, func() {}, fmt.Errorf("failed to open artifact %s: %w", item.Path, err)
	}
	return tu.File(f), func() {
		if err := f.Close(); err != nil {
			log.Printf("[Telegram] Failed to close %s: %v", item.Path, err)
		}
	}, nil
}

// classify maps telego errors onto the channel error taxonomy.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == http.StatusTooManyRequests || (apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0) {
			rl := &backoff.RateLimitError{Err: fmt.Errorf("%s: %w", method, err)}
			if apiErr.Parameters != nil {
				rl.RetryAfter = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
			}
			return rl
		}
		return &channel.PlatformError{Method: method, Code: apiErr.ErrorCode, Description: apiErr.Description, Err: err}
	}
	msg := err.Error()
	if d, ok := backoff.ParseRetryAfter(msg); ok {
		return &backoff.RateLimitError{RetryAfter: d, Err: fmt.Errorf("%s: %w", method, err)}
	}
	if strings.Contains(msg, "429") {
		return &backoff.RateLimitError{Err: fmt.Errorf("%s: %w", method, err)}
	}
	return &channel.PlatformError{Method: method, Description: msg, Err: err}
}
