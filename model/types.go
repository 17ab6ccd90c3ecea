// Package model defines the core data structures for feed-agg.
package model

import (
	"errors"
	"time"
)

// FeedStatus is the lifecycle state of a feed.
type FeedStatus string

const (
	StatusActive FeedStatus = "active"
	StatusPaused FeedStatus = "paused"
	StatusError  FeedStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s FeedStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusError:
		return true
	}
	return false
}

// Feed represents an RSS/Atom feed source.
type Feed struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	Category         string     `json:"category"`
	FetchIntervalMin int        `json:"fetch_interval_min"`
	LastFetched      *time.Time `json:"last_fetched,omitempty"`
	Status           FeedStatus `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ItemCount        int        `json:"item_count"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate checks if the feed has required fields.
func (f *Feed) Validate() error {
	if f.Name == "" {
		return errors.New("feed name is required")
	}
	if f.URL == "" {
		return errors.New("feed URL is required")
	}
	return nil
}

// FeedItem represents a single article stored from a feed.
type FeedItem struct {
	ID           string    `json:"id"`
	FeedID       string    `json:"feed_id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Summary      string    `json:"summary,omitempty"`
	Author       string    `json:"author,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Fingerprint  string    `json:"fingerprint"`
	IsRead       bool      `json:"is_read"`
	IsBookmarked bool      `json:"is_bookmarked"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsUnread returns true if the item hasn't been read.
func (i *FeedItem) IsUnread() bool {
	return !i.IsRead
}

// Age returns how long ago the item was published.
func (i *FeedItem) Age() time.Duration {
	return time.Since(i.PublishedAt)
}

// Stats summarizes the aggregate state of the store.
type Stats struct {
	TotalFeeds      int `json:"total_feeds"`
	ActiveFeeds     int `json:"active_feeds"`
	TotalItems      int `json:"total_items"`
	UnreadItems     int `json:"unread_items"`
	BookmarkedItems int `json:"bookmarked_items"`
}
