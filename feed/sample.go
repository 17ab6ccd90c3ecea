package feed

import (
	"context"
	"time"

	"github.com/robertmeta/feed-agg/model"
)

// sampleItem is a canned article used by SampleFetcher.
type sampleItem struct {
	title   string
	author  string
	url     string
	summary string
}

// sampleFeeds maps feed categories to canned content.
var sampleFeeds = map[string][]sampleItem{
	"tech-news": {
		{"AI Breakthrough in 2025", "Jane Smith", "https://example.com/ai-2025",
			"New AI models achieve human parity on reasoning benchmarks."},
		{"Open Source Wins Big", "John Doe", "https://example.com/oss",
			"Open source projects dominate enterprise adoption."},
		{"Cloud Costs Spiral", "Alice Brown", "https://example.com/cloud",
			"Enterprise cloud costs up 40% year over year."},
	},
	"science": {
		{"Mars Mission Update", "NASA Team", "https://example.com/mars",
			"Perseverance rover discovers ancient lake bed."},
		{"Quantum Computing Milestone", "MIT Lab", "https://example.com/quantum",
			"100-qubit processor achieves new error correction record."},
	},
	"default": {
		{"Sample Article 1", "Author A", "https://example.com/1", "Content for article one."},
		{"Sample Article 2", "Author B", "https://example.com/2", "Content for article two."},
	},
}

// SampleFetcher serves canned items keyed by feed category, with no network
// involved. It backs the demo command and doubles as a deterministic fetcher
// in tests: fetching the same feed twice returns identical content.
type SampleFetcher struct{}

// NewSampleFetcher creates a new SampleFetcher.
func NewSampleFetcher() *SampleFetcher {
	return &SampleFetcher{}
}

// Fetch returns the canned items for the feed's category. Categories without
// canned content fall back to a small default set.
func (s *SampleFetcher) Fetch(_ context.Context, f *model.Feed) ([]RawItem, error) {
	items, ok := sampleFeeds[f.Category]
	if !ok {
		items = sampleFeeds["default"]
	}

	now := time.Now().UTC()
	raw := make([]RawItem, 0, len(items))
	for i, item := range items {
		raw = append(raw, RawItem{
			Title:       item.title,
			URL:         item.url,
			Summary:     item.summary,
			Author:      item.author,
			PublishedAt: now.Add(-time.Duration(i) * 6 * time.Hour),
		})
	}
	return raw, nil
}
