// Package store provides SQLite database operations for feed-agg.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robertmeta/feed-agg/model"
	_ "modernc.org/sqlite"
)

// Sentinel errors surfaced by store operations. Callers check them with
// errors.Is.
var (
	ErrFeedNotFound  = errors.New("feed not found")
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateItem = errors.New("item with this fingerprint already exists")
)

// Store manages the SQLite database. database/sql provides the connection
// pool; writes are serialized on a single connection so each operation is an
// atomic unit, including the FTS index triggers it fires.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables, the full-text index, and the
// triggers that keep the index synchronized with item inserts and deletes.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		category TEXT NOT NULL DEFAULT 'general',
		fetch_interval_min INTEGER DEFAULT 60,
		last_fetched INTEGER,
		status TEXT NOT NULL DEFAULT 'active',
		error_message TEXT,
		item_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS feed_items (
		id TEXT PRIMARY KEY,
		feed_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		summary TEXT DEFAULT '',
		author TEXT DEFAULT '',
		published_at INTEGER NOT NULL,
		fingerprint TEXT NOT NULL UNIQUE,
		is_read INTEGER DEFAULT 0,
		is_bookmarked INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (feed_id) REFERENCES feeds(id)
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS feed_items_fts
		USING fts5(title, summary, author, content=feed_items, content_rowid=rowid);

	CREATE TRIGGER IF NOT EXISTS feed_items_ai AFTER INSERT ON feed_items BEGIN
		INSERT INTO feed_items_fts(rowid, title, summary, author)
		VALUES (new.rowid, new.title, new.summary, new.author);
	END;

	CREATE TRIGGER IF NOT EXISTS feed_items_ad AFTER DELETE ON feed_items BEGIN
		INSERT INTO feed_items_fts(feed_items_fts, rowid, title, summary, author)
		VALUES ('delete', old.rowid, old.title, old.summary, old.author);
	END;

	CREATE INDEX IF NOT EXISTS idx_items_feed ON feed_items(feed_id);
	CREATE INDEX IF NOT EXISTS idx_items_published ON feed_items(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_feeds_status ON feeds(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AddFeed registers a new feed. Feed URLs are globally unique: adding a URL
// that already exists is a no-op that returns the existing feed.
func (s *Store) AddFeed(name, url, category string, fetchIntervalMin int) (*model.Feed, error) {
	if category == "" {
		category = "general"
	}
	if fetchIntervalMin <= 0 {
		fetchIntervalMin = 60
	}

	feed := &model.Feed{
		ID:               uuid.NewString(),
		Name:             name,
		URL:              url,
		Category:         category,
		FetchIntervalMin: fetchIntervalMin,
		Status:           model.StatusActive,
		CreatedAt:        time.Now().UTC(),
	}
	if err := feed.Validate(); err != nil {
		return nil, err
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO feeds (id, name, url, category, fetch_interval_min, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		feed.ID, feed.Name, feed.URL, feed.Category, feed.FetchIntervalMin,
		string(feed.Status), feed.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feed: %w", err)
	}

	// Either the row we just wrote or the pre-existing one for this URL.
	return s.GetFeedByURL(url)
}

const feedColumns = "id, name, url, category, fetch_interval_min, last_fetched, status, error_message, item_count, created_at"

// GetFeed retrieves a feed by ID.
func (s *Store) GetFeed(id string) (*model.Feed, error) {
	row := s.db.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", id)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

// GetFeedByURL retrieves a feed by its source URL.
func (s *Store) GetFeedByURL(url string) (*model.Feed, error) {
	row := s.db.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE url = ?", url)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by url: %w", err)
	}
	return feed, nil
}

// ListFeeds retrieves feeds ordered by name. When status is non-empty only
// feeds in that status are returned.
func (s *Store) ListFeeds(status model.FeedStatus) ([]*model.Feed, error) {
	query := "SELECT " + feedColumns + " FROM feeds"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// MarkFeedRefreshed records a successful refresh: status back to active,
// error cleared, item count and last-fetched stamped.
func (s *Store) MarkFeedRefreshed(id string, itemCount int, fetchedAt time.Time) error {
	_, err := s.db.Exec(
		"UPDATE feeds SET last_fetched = ?, status = ?, error_message = NULL, item_count = ? WHERE id = ?",
		fetchedAt.Unix(), string(model.StatusActive), itemCount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark feed refreshed: %w", err)
	}
	return nil
}

// MarkFeedError records a failed refresh.
func (s *Store) MarkFeedError(id, message string) error {
	_, err := s.db.Exec(
		"UPDATE feeds SET status = ?, error_message = ? WHERE id = ?",
		string(model.StatusError), message, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark feed error: %w", err)
	}
	return nil
}

// PauseFeed sets a feed to paused. Returns false if the feed doesn't exist.
// Pausing an already-paused feed is an idempotent no-op that returns true.
func (s *Store) PauseFeed(id string) (bool, error) {
	return s.setFeedStatus(id, model.StatusPaused)
}

// ResumeFeed sets a feed back to active. Returns false if the feed doesn't exist.
func (s *Store) ResumeFeed(id string) (bool, error) {
	return s.setFeedStatus(id, model.StatusActive)
}

func (s *Store) setFeedStatus(id string, status model.FeedStatus) (bool, error) {
	result, err := s.db.Exec("UPDATE feeds SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return false, fmt.Errorf("failed to set feed status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row scanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var (
		lastFetched  sql.NullInt64
		status       string
		errorMessage sql.NullString
		createdAt    int64
	)

	err := row.Scan(&feed.ID, &feed.Name, &feed.URL, &feed.Category, &feed.FetchIntervalMin,
		&lastFetched, &status, &errorMessage, &feed.ItemCount, &createdAt)
	if err != nil {
		return nil, err
	}

	if lastFetched.Valid {
		t := time.Unix(lastFetched.Int64, 0).UTC()
		feed.LastFetched = &t
	}
	feed.Status = model.FeedStatus(status)
	feed.ErrorMessage = errorMessage.String
	feed.CreatedAt = time.Unix(createdAt, 0).UTC()

	return feed, nil
}
