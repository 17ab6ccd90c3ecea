// Package feed provides RSS/Atom feed fetching and parsing for feed-agg.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robertmeta/feed-agg/model"
)

// RawItem is a normalized item as returned by a fetcher, before
// fingerprinting and persistence.
type RawItem struct {
	Title       string
	URL         string
	Summary     string
	Author      string
	PublishedAt time.Time
}

// Fetcher retrieves the current items of a feed. Implementations must return
// an error on network or parse failure rather than a partial result, so the
// refresh engine can record the feed as errored.
type Fetcher interface {
	Fetch(ctx context.Context, f *model.Feed) ([]RawItem, error)
}

// HTTPFetcher fetches and parses real RSS/Atom feeds over HTTP.
type HTTPFetcher struct {
	parser *gofeed.Parser
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves and parses the feed at f.URL. Cancellation and deadlines
// come through ctx.
func (h *HTTPFetcher) Fetch(ctx context.Context, f *model.Feed) ([]RawItem, error) {
	parsed, err := h.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", f.URL, err)
	}

	var items []RawItem
	for _, item := range parsed.Items {
		items = append(items, convertItem(item))
	}
	return items, nil
}

// Parse parses feed content from a string, mainly for fixtures and tests.
func (h *HTTPFetcher) Parse(content string) ([]RawItem, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsed, err := h.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var items []RawItem
	for _, item := range parsed.Items {
		items = append(items, convertItem(item))
	}
	return items, nil
}

// convertItem converts a gofeed.Item to a RawItem.
func convertItem(item *gofeed.Item) RawItem {
	raw := RawItem{
		Title: item.Title,
		URL:   item.Link,
	}

	// Prefer the short description as summary, fall back to full content
	if item.Description != "" {
		raw.Summary = item.Description
	} else {
		raw.Summary = item.Content
	}

	if item.Author != nil {
		raw.Author = item.Author.Name
	}

	if item.PublishedParsed != nil {
		raw.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = *item.UpdatedParsed
	} else {
		// Fallback to current time if no date found
		raw.PublishedAt = time.Now().UTC()
	}

	return raw
}
