package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robertmeta/feed-agg/config"
	"github.com/robertmeta/feed-agg/feed"
	"github.com/robertmeta/feed-agg/model"
	"github.com/robertmeta/feed-agg/opml"
	"github.com/robertmeta/feed-agg/refresh"
	"github.com/robertmeta/feed-agg/store"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := &cli.App{
		Name:    "feed-agg",
		Usage:   "A scriptable RSS/Atom feed aggregator with content deduplication",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   getDefaultConfigPath(),
				Usage:   "Config file path",
				EnvVars: []string{"FEED_AGG_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (overrides config)",
				EnvVars: []string{"FEED_AGG_DB"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log refresh activity to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a new feed",
				ArgsUsage: "<name> <url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "category",
						Aliases: []string{"c"},
						Usage:   "Feed category",
					},
					&cli.IntFlag{
						Name:  "interval",
						Usage: "Fetch interval in minutes",
					},
				},
				Action: addFeed,
			},
			{
				Name:  "feeds",
				Usage: "List feeds",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "status",
						Aliases: []string{"s"},
						Usage:   "Filter by status (active, paused, error)",
					},
				},
				Action: listFeeds,
			},
			{
				Name:  "refresh",
				Usage: "Refresh feeds (fetch and deduplicate new items)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "feed-id",
						Aliases: []string{"f"},
						Usage:   "Refresh a specific feed (if not set, refreshes all active feeds)",
					},
					&cli.BoolFlag{
						Name:  "sample",
						Usage: "Use canned sample content instead of the network",
					},
				},
				Action: refreshFeeds,
			},
			{
				Name:  "items",
				Usage: "List stored items",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "feed-id",
						Aliases: []string{"f"},
						Usage:   "Filter by feed ID",
					},
					&cli.StringFlag{
						Name:    "category",
						Aliases: []string{"c"},
						Usage:   "Filter by feed category",
					},
					&cli.BoolFlag{
						Name:    "unread",
						Aliases: []string{"u"},
						Usage:   "Show only unread items",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of items to return",
					},
					&cli.StringFlag{
						Name:  "since",
						Usage: "Show items since duration (e.g., 7d, 2w, 3m, 1y)",
					},
				},
				Action: listItems,
			},
			{
				Name:      "search",
				Usage:     "Full-text search over item titles, summaries, and authors",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   20,
						Usage:   "Maximum number of results",
					},
				},
				Action: searchItems,
			},
			{
				Name:   "bookmarks",
				Usage:  "List bookmarked items",
				Action: listBookmarks,
			},
			{
				Name:      "mark-read",
				Usage:     "Mark items as read",
				ArgsUsage: "<item-id>...",
				Action:    makeFlagAction("marked_read", (*store.Store).MarkRead),
			},
			{
				Name:      "mark-unread",
				Usage:     "Mark items as unread",
				ArgsUsage: "<item-id>...",
				Action:    makeFlagAction("marked_unread", (*store.Store).MarkUnread),
			},
			{
				Name:      "bookmark",
				Usage:     "Bookmark items",
				ArgsUsage: "<item-id>...",
				Action:    makeFlagAction("bookmarked", (*store.Store).Bookmark),
			},
			{
				Name:      "unbookmark",
				Usage:     "Remove item bookmarks",
				ArgsUsage: "<item-id>...",
				Action:    makeFlagAction("unbookmarked", (*store.Store).Unbookmark),
			},
			{
				Name:      "pause",
				Usage:     "Pause a feed (skipped by refresh until resumed)",
				ArgsUsage: "<feed-id>",
				Action:    pauseFeed,
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused feed",
				ArgsUsage: "<feed-id>",
				Action:    resumeFeed,
			},
			{
				Name:   "dedupe",
				Usage:  "Sweep the store, collapsing duplicate items to one survivor",
				Action: dedupe,
			},
			{
				Name:   "stats",
				Usage:  "Show aggregate feed and item counts",
				Action: showStats,
			},
			{
				Name:      "import",
				Usage:     "Import feeds from OPML file",
				ArgsUsage: "<opml-file>",
				Action:    importOPML,
			},
			{
				Name:  "export",
				Usage: "Export feeds to OPML, grouped by category",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportOPML,
			},
			{
				Name:   "demo",
				Usage:  "Seed sample feeds and walk through refresh, search, and stats",
				Action: runDemo,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func getDefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feed-agg.yaml"
	}
	return filepath.Join(home, ".config", "feed-agg", "config.yaml")
}

func getConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

func getStore(c *cli.Context) (*store.Store, config.Config, error) {
	cfg, err := getConfig(c)
	if err != nil {
		return nil, cfg, err
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, cfg, fmt.Errorf("failed to create database directory: %w", err)
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open database: %w", err)
	}

	return s, cfg, nil
}

func getLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("verbose") {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func getEngine(c *cli.Context, s *store.Store, cfg config.Config, sample bool) *refresh.Engine {
	var fetcher feed.Fetcher = feed.NewHTTPFetcher()
	if sample {
		fetcher = feed.NewSampleFetcher()
	}
	opts := refresh.Options{
		MaxItemsPerFeed:  cfg.MaxItemsPerFeed,
		MaxSummaryLength: cfg.MaxSummaryLength,
		FetchTimeout:     cfg.FetchTimeout(),
		Workers:          cfg.Workers,
	}
	return refresh.NewEngine(s, fetcher, opts, getLogger(c))
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func addFeed(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: feed-agg add <name> <url>", ExitUsageError)
	}

	name := c.Args().Get(0)
	url := c.Args().Get(1)

	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	newFeed, err := s.AddFeed(name, url, c.String("category"), c.Int("interval"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to add feed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"feed":    newFeed,
	})
}

func listFeeds(c *cli.Context) error {
	status := model.FeedStatus(c.String("status"))
	if status != "" && !status.Valid() {
		return cli.Exit("Invalid status (expected active, paused, or error)", ExitUsageError)
	}

	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feeds, err := s.ListFeeds(status)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feeds: %v", err), ExitDataError)
	}

	return outputJSON(feeds)
}

func refreshFeeds(c *cli.Context) error {
	s, cfg, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	engine := getEngine(c, s, cfg, c.Bool("sample"))

	if feedID := c.String("feed-id"); feedID != "" {
		result, err := engine.RefreshFeed(c.Context, feedID)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Refresh failed: %v", err), ExitDataError)
		}
		return outputJSON(result)
	}

	results, err := engine.RefreshAll(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Refresh failed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"refreshed": len(results),
		"results":   results,
	})
}

func listItems(c *cli.Context) error {
	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	opts, err := store.BuildQueryOptions(c.Int("limit"), c.Bool("unread"), c.String("since"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	var items []*model.FeedItem
	switch {
	case c.String("feed-id") != "":
		items, err = s.ItemsByFeed(c.String("feed-id"), opts)
	case c.String("category") != "":
		items, err = s.ItemsByCategory(c.String("category"), opts)
	default:
		return cli.Exit("Either --feed-id or --category is required", ExitUsageError)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get items: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func searchItems(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-agg search <query>", ExitUsageError)
	}

	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	items, err := s.Search(c.Args().Get(0), c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Search failed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func listBookmarks(c *cli.Context) error {
	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	items, err := s.Bookmarks(0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get bookmarks: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// makeFlagAction builds an action that applies a boolean item mutation to
// every item ID argument. Unknown IDs are no-ops, not errors.
func makeFlagAction(resultKey string, op func(*store.Store, string) (bool, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit(fmt.Sprintf("Usage: feed-agg %s <item-id>...", c.Command.Name), ExitUsageError)
		}

		s, _, err := getStore(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		defer s.Close()

		updated := 0
		for i := 0; i < c.NArg(); i++ {
			ok, err := op(s, c.Args().Get(i))
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to update item: %v", err), ExitDataError)
			}
			if ok {
				updated++
			}
		}

		return outputJSON(map[string]interface{}{
			resultKey: updated,
		})
	}
}

func pauseFeed(c *cli.Context) error {
	return toggleFeed(c, "paused", (*store.Store).PauseFeed)
}

func resumeFeed(c *cli.Context) error {
	return toggleFeed(c, "resumed", (*store.Store).ResumeFeed)
}

func toggleFeed(c *cli.Context, resultKey string, op func(*store.Store, string) (bool, error)) error {
	if c.NArg() < 1 {
		return cli.Exit(fmt.Sprintf("Usage: feed-agg %s <feed-id>", c.Command.Name), ExitUsageError)
	}

	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	ok, err := op(s, c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to update feed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		resultKey: ok,
		"feed_id": c.Args().Get(0),
	})
}

func dedupe(c *cli.Context) error {
	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	removed, err := refresh.NewSweeper(s, getLogger(c)).Sweep()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Sweep failed: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"duplicates_removed": removed,
	})
}

func showStats(c *cli.Context) error {
	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get stats: %v", err), ExitDataError)
	}

	return outputJSON(stats)
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-agg import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	imported := 0
	var errors []string
	for _, f := range feeds {
		if _, err := s.AddFeed(f.Name, f.URL, f.Category, f.FetchIntervalMin); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", f.URL, err))
			continue
		}
		imported++
	}

	return outputJSON(map[string]interface{}{
		"success":  true,
		"imported": imported,
		"total":    len(feeds),
		"errors":   errors,
	})
}

func exportOPML(c *cli.Context) error {
	s, _, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	feeds, err := s.ListFeeds("")
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feeds: %v", err), ExitDataError)
	}

	outputPath := c.String("output")
	var writer io.Writer

	if outputPath == "" {
		writer = os.Stdout
	} else {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if err := opml.Generate(writer, feeds); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(feeds),
		})
	}

	return nil
}

func runDemo(c *cli.Context) error {
	s, cfg, err := getStore(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer s.Close()

	f1, err := s.AddFeed("TechCrunch", "https://techcrunch.com/feed/", "tech-news", 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to add feed: %v", err), ExitDataError)
	}
	f2, err := s.AddFeed("NASA News", "https://www.nasa.gov/rss/dyn/breaking_news.rss", "science", 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to add feed: %v", err), ExitDataError)
	}

	engine := getEngine(c, s, cfg, true)
	r1, err := engine.RefreshFeed(c.Context, f1.ID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Refresh failed: %v", err), ExitDataError)
	}
	r2, err := engine.RefreshFeed(c.Context, f2.ID)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Refresh failed: %v", err), ExitDataError)
	}

	items, err := s.ItemsByFeed(f1.ID, store.QueryOptions{Limit: 50})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get items: %v", err), ExitDataError)
	}
	if len(items) > 0 {
		s.MarkRead(items[0].ID)
		s.Bookmark(items[0].ID)
	}

	searched, err := s.Search("AI", 20)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Search failed: %v", err), ExitDataError)
	}

	stats, err := s.Stats()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get stats: %v", err), ExitDataError)
	}

	allFeeds, err := s.ListFeeds("")
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get feeds: %v", err), ExitDataError)
	}
	var opmlOut strings.Builder
	if err := opml.Generate(&opmlOut, allFeeds); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"feeds":          []interface{}{f1, f2},
		"refresh":        []interface{}{r1, r2},
		"search_ai_hits": len(searched),
		"stats":          stats,
		"opml":           opmlOut.String(),
	})
}
