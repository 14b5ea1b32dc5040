package port

import (
	"context"
	"relaybot/internal/core/domain"
)

type FeedReader interface {
	// Latest fetches a feed and returns its newest item.
	Latest(ctx context.Context, url string) (domain.FeedItem, error)
}
