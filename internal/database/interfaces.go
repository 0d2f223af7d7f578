package database

import (
	"context"

	"newsboost-bot/internal/database/models"
)

// PostLogger records republished posts.
type PostLogger interface {
	// LogPublishedPost stores one processed post.
	LogPublishedPost(ctx context.Context, entry models.PostLog) error
}

// NopPostLogger discards every entry. Used when MongoDB is not configured.
type NopPostLogger struct{}

// LogPublishedPost implements PostLogger.
func (NopPostLogger) LogPublishedPost(context.Context, models.PostLog) error { return nil }
