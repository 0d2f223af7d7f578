package models

import "time"

// PostLog stores information about a post republished in a channel.
type PostLog struct {
	SourceKey       string    `bson:"source_key"`
	ChatID          int64     `bson:"chat_id"`
	ChatUsername    string    `bson:"chat_username,omitempty"`
	SourceIDs       []int     `bson:"source_message_ids"`
	MediaGroupID    string    `bson:"media_group_id,omitempty"`
	PublishedIDs    []int     `bson:"published_message_ids,omitempty"`
	Mode            string    `bson:"mode"` // edit, replace, repost-then-delete
	MessageType     string    `bson:"message_type"`
	Text            string    `bson:"text,omitempty"`
	AuthorSignature string    `bson:"author_signature,omitempty"`
	Watermarked     bool      `bson:"watermarked"`
	UndeletedIDs    []int     `bson:"undeleted_ids,omitempty"`
	ReceivedAt      time.Time `bson:"received_at"`
	PublishedAt     time.Time `bson:"published_at"`
}
