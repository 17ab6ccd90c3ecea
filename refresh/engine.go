// Package refresh implements the feed refresh engine: fetching feeds,
// deduplicating items by fingerprint, and maintaining feed health state.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertmeta/feed-agg/feed"
	"github.com/robertmeta/feed-agg/model"
	"github.com/robertmeta/feed-agg/store"
)

// Options bounds a refresh cycle.
type Options struct {
	MaxItemsPerFeed  int           // cap on items processed per refresh
	MaxSummaryLength int           // stored summaries are truncated to this
	FetchTimeout     time.Duration // per-feed fetch deadline
	Workers          int           // parallel feeds during fleet refresh
}

// DefaultOptions mirrors the default aggregator configuration.
func DefaultOptions() Options {
	return Options{
		MaxItemsPerFeed:  100,
		MaxSummaryLength: 500,
		FetchTimeout:     10 * time.Second,
		Workers:          4,
	}
}

// Result summarizes one feed's refresh.
type Result struct {
	FeedID     string `json:"feed_id"`
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	NewItems   int    `json:"new_items"`
	Duplicates int    `json:"duplicates"`
	TotalItems int    `json:"total_items"`
	Err        string `json:"error,omitempty"`
}

// Engine orchestrates fetch, dedup, persist, and feed status updates.
type Engine struct {
	store   *store.Store
	fetcher feed.Fetcher
	opts    Options
	log     *slog.Logger
}

// NewEngine creates a refresh engine. A nil logger discards engine logs.
func NewEngine(st *store.Store, fetcher feed.Fetcher, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxItemsPerFeed <= 0 {
		opts.MaxItemsPerFeed = 100
	}
	if opts.MaxSummaryLength <= 0 {
		opts.MaxSummaryLength = 500
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:   st,
		fetcher: fetcher,
		opts:    opts,
		log:     logger.With("component", "refresh"),
	}
}

// RefreshFeed fetches and stores new items for one feed.
//
// Paused feeds return a skip result without fetching or mutating anything.
// Items whose fingerprint already exists anywhere in the store count as
// duplicates and are not re-inserted, even when first seen via another feed.
// On fetch or store failure the feed is marked errored (best effort) and the
// failure is returned; items committed before the failure are kept.
func (e *Engine) RefreshFeed(ctx context.Context, feedID string) (*Result, error) {
	f, err := e.store.GetFeed(feedID)
	if err != nil {
		return nil, err
	}

	if f.Status == model.StatusPaused {
		return &Result{FeedID: feedID, Skipped: true, Reason: "paused"}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	raw, err := e.fetcher.Fetch(fetchCtx, f)
	if err != nil {
		e.failFeed(feedID, err)
		return nil, fmt.Errorf("fetch failed for feed %s: %w", feedID, err)
	}

	if len(raw) > e.opts.MaxItemsPerFeed {
		raw = raw[:e.opts.MaxItemsPerFeed]
	}

	newCount := 0
	dupCount := 0
	for _, r := range raw {
		fp := model.Fingerprint(r.Title, r.URL)

		exists, err := e.store.ItemExists(fp)
		if err != nil {
			e.failFeed(feedID, err)
			return nil, err
		}
		if exists {
			dupCount++
			continue
		}

		item := &model.FeedItem{
			ID:          uuid.NewString(),
			FeedID:      feedID,
			Title:       r.Title,
			URL:         r.URL,
			Summary:     truncate(r.Summary, e.opts.MaxSummaryLength),
			Author:      r.Author,
			PublishedAt: r.PublishedAt,
			Fingerprint: fp,
			CreatedAt:   time.Now().UTC(),
		}
		if err := e.store.InsertItem(item); err != nil {
			if errors.Is(err, store.ErrDuplicateItem) {
				// Lost a race with a concurrent refresh; still a duplicate.
				dupCount++
				continue
			}
			e.failFeed(feedID, err)
			return nil, err
		}
		newCount++
	}

	total, err := e.store.CountItems(feedID)
	if err != nil {
		e.failFeed(feedID, err)
		return nil, err
	}
	if err := e.store.MarkFeedRefreshed(feedID, total, time.Now().UTC()); err != nil {
		e.failFeed(feedID, err)
		return nil, err
	}

	e.log.Info("feed refreshed", "feed_id", feedID, "new", newCount, "duplicates", dupCount, "total", total)

	return &Result{
		FeedID:     feedID,
		NewItems:   newCount,
		Duplicates: dupCount,
		TotalItems: total,
	}, nil
}

// RefreshAll refreshes every active feed. Paused and errored feeds are
// skipped; an errored feed recovers only through an explicit RefreshFeed.
// Individual failures become error entries in the result slice rather than
// aborting the run. Ordering of results is arbitrary.
func (e *Engine) RefreshAll(ctx context.Context) ([]Result, error) {
	feeds, err := e.store.ListFeeds(model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active feeds: %w", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []Result
	)
	sem := make(chan struct{}, e.opts.Workers)

	for _, f := range feeds {
		wg.Add(1)
		go func(feedID string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := e.RefreshFeed(ctx, feedID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results = append(results, Result{FeedID: feedID, Err: err.Error()})
				return
			}
			results = append(results, *res)
		}(f.ID)
	}

	wg.Wait()
	return results, nil
}

// failFeed records the error on the feed. The write itself is best effort:
// if the store is unreachable the original failure still propagates.
func (e *Engine) failFeed(feedID string, cause error) {
	if err := e.store.MarkFeedError(feedID, cause.Error()); err != nil {
		e.log.Warn("failed to record feed error", "feed_id", feedID, "error", err)
	}
}

// truncate caps s at max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
