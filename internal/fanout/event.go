package fanout

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"newsboost-bot/internal/posts"
)

// MediaTypes flags which attachment kinds the post carried.
type MediaTypes struct {
	Photo     bool `json:"photo"`
	Video     bool `json:"video"`
	Animation bool `json:"animation"`
	Document  bool `json:"document"`
}

// MediaInfo references the first attachment.
type MediaInfo struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// AllowOn tells the automation where the post may be cross-posted.
type AllowOn struct {
	X             bool `json:"x"`
	Facebook      bool `json:"facebook"`
	FacebookMedia bool `json:"facebookMedia"`
	Instagram     bool `json:"instagram"`
	TikTok        bool `json:"tiktok"`
}

// Event is the JSON body posted to the fanout sink.
type Event struct {
	ID                  string     `json:"id"`
	Source              string     `json:"source"`
	ChatID              int64      `json:"chatId"`
	MessageID           int        `json:"messageId"`
	GroupID             string     `json:"groupId,omitempty"`
	AlbumSize           int        `json:"albumSize,omitempty"`
	PublishedMessageIDs []int      `json:"publishedMessageIds"`
	Text                string     `json:"text"`
	OriginalText        string     `json:"originalText"`
	HasMedia            bool       `json:"hasMedia"`
	MediaTypes          MediaTypes `json:"mediaTypes"`
	Media               *MediaInfo `json:"media"`
	AllowOn             AllowOn    `json:"allowOn"`
	AuthorSignature     string     `json:"authorSignature"`
	PublishedAt         time.Time  `json:"publishedAt"`
}

// SafetyFilter blocks cross-posting of sensitive text to media-first networks.
type SafetyFilter struct {
	Words []string
	// Override is a hashtag that marks a post as safe regardless of Words.
	Override string
}

// Allows reports whether text may be cross-posted.
func (f SafetyFilter) Allows(text string) bool {
	lower := strings.ToLower(text)
	if f.Override != "" && strings.Contains(lower, strings.ToLower(f.Override)) {
		return true
	}
	for _, w := range f.Words {
		if w = strings.TrimSpace(w); w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

// NewEvent describes a published post or album. items are the source posts in order.
func NewEvent(items []posts.InboundPost, text string, published []int, filter SafetyFilter) Event {
	first := items[0]
	ev := Event{
		ID:                  uuid.NewString(),
		Source:              "telegram",
		ChatID:              first.ChatID,
		MessageID:           first.MessageID,
		GroupID:             first.GroupID,
		PublishedMessageIDs: published,
		Text:                text,
		AuthorSignature:     first.AuthorSignature,
		PublishedAt:         time.Now().UTC(),
	}
	if len(items) > 1 {
		ev.AlbumSize = len(items)
	}
	for _, item := range items {
		if ev.OriginalText == "" {
			ev.OriginalText = item.Body()
		}
		if item.Media == nil {
			continue
		}
		ev.HasMedia = true
		if ev.Media == nil {
			ev.Media = &MediaInfo{Type: string(item.Media.Kind), FileID: item.Media.FileID}
		}
		switch item.Media.Kind {
		case posts.KindPhoto:
			ev.MediaTypes.Photo = true
		case posts.KindVideo:
			ev.MediaTypes.Video = true
		case posts.KindAnimation:
			ev.MediaTypes.Animation = true
		case posts.KindDocument:
			ev.MediaTypes.Document = true
		}
	}

	safe := filter.Allows(ev.OriginalText)
	ev.AllowOn = AllowOn{
		X:             true,
		Facebook:      true,
		FacebookMedia: ev.HasMedia && safe,
		Instagram:     ev.HasMedia && safe,
		TikTok:        ev.MediaTypes.Video && safe,
	}
	return ev
}
