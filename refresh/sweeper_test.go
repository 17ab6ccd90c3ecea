package refresh

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertmeta/feed-agg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// seedLegacyDuplicates builds a database in the shape written before the
// fingerprint unique index existed, containing one fingerprint shared by
// three items. The sweeper exists to repair exactly this kind of data.
func seedLegacyDuplicates(t *testing.T, dbPath string) {
	t.Helper()

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
	CREATE TABLE feeds (
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

	CREATE TABLE feed_items (
		id TEXT PRIMARY KEY,
		feed_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		summary TEXT DEFAULT '',
		author TEXT DEFAULT '',
		published_at INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		is_read INTEGER DEFAULT 0,
		is_bookmarked INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (feed_id) REFERENCES feeds(id)
	);

	CREATE VIRTUAL TABLE feed_items_fts
		USING fts5(title, summary, author, content=feed_items, content_rowid=rowid);

	CREATE TRIGGER feed_items_ai AFTER INSERT ON feed_items BEGIN
		INSERT INTO feed_items_fts(rowid, title, summary, author)
		VALUES (new.rowid, new.title, new.summary, new.author);
	END;

	CREATE TRIGGER feed_items_ad AFTER DELETE ON feed_items BEGIN
		INSERT INTO feed_items_fts(feed_items_fts, rowid, title, summary, author)
		VALUES ('delete', old.rowid, old.title, old.summary, old.author);
	END;
	`)
	require.NoError(t, err)

	now := time.Now().UTC().Unix()
	_, err = db.Exec(
		`INSERT INTO feeds (id, name, url, created_at) VALUES ('feed-1', 'Legacy Feed', 'https://example.com/rss', ?)`,
		now,
	)
	require.NoError(t, err)

	for _, id := range []string{"item-a", "item-b", "item-c"} {
		_, err = db.Exec(
			`INSERT INTO feed_items (id, feed_id, title, url, published_at, fingerprint, created_at)
			 VALUES (?, 'feed-1', 'Duplicated Article', 'https://example.com/dup', ?, 'aaaa111122223333', ?)`,
			id, now, now,
		)
		require.NoError(t, err)
	}
}

func TestSweeper_CollapsesDuplicates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDuplicates(t, dbPath)

	s, err := store.New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	removed, err := NewSweeper(s, nil).Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// The smallest ID survives, the others are gone
	survivor, err := s.GetItem("item-a")
	require.NoError(t, err)
	assert.Equal(t, "aaaa111122223333", survivor.Fingerprint)

	_, err = s.GetItem("item-b")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
	_, err = s.GetItem("item-c")
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	// Exactly one item remains in the search index for the shared content
	results, err := s.Search("duplicated", 20)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSweeper_SecondPassRemovesNothing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	seedLegacyDuplicates(t, dbPath)

	s, err := store.New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	sweeper := NewSweeper(s, nil)

	removed, err := sweeper.Sweep()
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweeper_CleanStore(t *testing.T) {
	s := newTestStore(t)

	removed, err := NewSweeper(s, nil).Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
