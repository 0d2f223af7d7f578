package posts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

// MediaKind is the kind of a single media attachment.
type MediaKind string

const (
	KindPhoto     MediaKind = "photo"
	KindVideo     MediaKind = "video"
	KindAnimation MediaKind = "animation"
	KindDocument  MediaKind = "document"
)

// Watermarkable reports whether the media pipeline may overlay a watermark on this kind.
func (k MediaKind) Watermarkable() bool {
	return k == KindPhoto || k == KindVideo || k == KindAnimation
}

// MediaRef points at an attachment stored on the platform.
type MediaRef struct {
	Kind         MediaKind
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
}

// InboundPost is a new channel post as seen by the pipeline.
type InboundPost struct {
	ChatID          int64
	ChatUsername    string
	MessageID       int
	GroupID         string
	Text            string
	Caption         string
	Media           *MediaRef
	AuthorSignature string
	// AuthorIsAutomated is set when the post was produced by a bot (possibly this one).
	AuthorIsAutomated bool
	Timestamp         time.Time
}

// HasMedia reports whether the post carries an attachment.
func (p InboundPost) HasMedia() bool {
	return p.Media != nil
}

// Body returns the author text: the caption for media posts, the text otherwise.
func (p InboundPost) Body() string {
	if p.Media != nil {
		return p.Caption
	}
	return p.Text
}

// IsEmpty reports whether there is nothing to process.
func (p InboundPost) IsEmpty() bool {
	return p.Media == nil && strings.TrimSpace(p.Text) == ""
}

// Key is the ProcessedKey of a single post.
func (p InboundPost) Key() string {
	return Key(p.ChatID, p.MessageID)
}

// Key builds the ProcessedKey for a single message.
func Key(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// AlbumKey builds the ProcessedKey for a whole album.
func AlbumKey(chatID int64, groupID string) string {
	return fmt.Sprintf("group:%d:%s", chatID, groupID)
}

// PublishedKey marks a message the bot itself posted. It lives in its own
// namespace so that claiming a post never makes it look like our own output.
func PublishedKey(chatID int64, messageID int) string {
	return fmt.Sprintf("pub:%d:%d", chatID, messageID)
}

// ContentKey fingerprints the caption and attachment of a media post so that
// the same file re-sent under a new message id can be recognised. Text-only
// posts return "": a repeated text is a new post.
func ContentKey(p InboundPost) string {
	if p.Media == nil || p.Media.FileUniqueID == "" {
		return ""
	}
	body := strings.Join(strings.Fields(p.Body()), " ")
	sum := sha256.Sum256([]byte(body + "\x00" + p.Media.FileUniqueID))
	return fmt.Sprintf("hash:%d:%s", p.ChatID, hex.EncodeToString(sum[:8]))
}

// FromMessage converts a telego channel post. selfID is the bot's own user id,
// used to flag messages the bot itself sent.
func FromMessage(msg telego.Message, selfID int64) InboundPost {
	post := InboundPost{
		ChatID:          msg.Chat.ID,
		ChatUsername:    msg.Chat.Username,
		MessageID:       msg.MessageID,
		GroupID:         msg.MediaGroupID,
		Text:            msg.Text,
		Caption:         msg.Caption,
		Media:           MediaFromMessage(msg),
		AuthorSignature: msg.AuthorSignature,
		Timestamp:       time.Unix(msg.Date, 0),
	}
	if msg.From != nil && (msg.From.IsBot || msg.From.ID == selfID) {
		post.AuthorIsAutomated = true
	}
	if msg.ViaBot != nil && (selfID == 0 || msg.ViaBot.ID == selfID) {
		post.AuthorIsAutomated = true
	}
	return post
}

// MediaFromMessage extracts the attachment of a message, or nil.
// Animations also carry a document, so they are checked first.
func MediaFromMessage(msg telego.Message) *MediaRef {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return &MediaRef{Kind: KindPhoto, FileID: best.FileID, FileUniqueID: best.FileUniqueID}
	case msg.Video != nil:
		return &MediaRef{Kind: KindVideo, FileID: msg.Video.FileID, FileUniqueID: msg.Video.FileUniqueID,
			FileName: msg.Video.FileName, MimeType: msg.Video.MimeType}
	case msg.Animation != nil:
		return &MediaRef{Kind: KindAnimation, FileID: msg.Animation.FileID, FileUniqueID: msg.Animation.FileUniqueID,
			FileName: msg.Animation.FileName, MimeType: msg.Animation.MimeType}
	case msg.Document != nil:
		return &MediaRef{Kind: KindDocument, FileID: msg.Document.FileID, FileUniqueID: msg.Document.FileUniqueID,
			FileName: msg.Document.FileName, MimeType: msg.Document.MimeType}
	}
	return nil
}
