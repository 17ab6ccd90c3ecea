package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robertmeta/feed-agg/model"
)

const itemColumns = "id, feed_id, title, url, summary, author, published_at, fingerprint, is_read, is_bookmarked, created_at"

// ItemExists reports whether any item in the store carries the fingerprint,
// regardless of which feed it arrived through.
func (s *Store) ItemExists(fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM feed_items WHERE fingerprint = ? LIMIT 1", fingerprint).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return true, nil
}

// InsertItem inserts a new item. The fingerprint column carries a UNIQUE
// index, so two writers racing on the same content resolve here: the loser
// gets ErrDuplicateItem. The insert trigger adds the item to the full-text
// index in the same unit of work.
func (s *Store) InsertItem(item *model.FeedItem) error {
	_, err := s.db.Exec(
		`INSERT INTO feed_items
		 (id, feed_id, title, url, summary, author, published_at, fingerprint, is_read, is_bookmarked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.FeedID, item.Title, item.URL, item.Summary, item.Author,
		item.PublishedAt.Unix(), item.Fingerprint,
		boolToInt(item.IsRead), boolToInt(item.IsBookmarked), item.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateItem
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(id string) (*model.FeedItem, error) {
	row := s.db.QueryRow("SELECT "+itemColumns+" FROM feed_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// CountItems returns the number of stored items attributed to a feed.
func (s *Store) CountItems(feedID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM feed_items WHERE feed_id = ?", feedID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// MarkRead marks an item as read. Returns false if the item doesn't exist.
func (s *Store) MarkRead(id string) (bool, error) {
	return s.setItemFlag(id, "is_read", true)
}

// MarkUnread marks an item as unread. Returns false if the item doesn't exist.
func (s *Store) MarkUnread(id string) (bool, error) {
	return s.setItemFlag(id, "is_read", false)
}

// Bookmark bookmarks an item. Returns false if the item doesn't exist.
func (s *Store) Bookmark(id string) (bool, error) {
	return s.setItemFlag(id, "is_bookmarked", true)
}

// Unbookmark removes an item's bookmark. Returns false if the item doesn't exist.
func (s *Store) Unbookmark(id string) (bool, error) {
	return s.setItemFlag(id, "is_bookmarked", false)
}

func (s *Store) setItemFlag(id, column string, value bool) (bool, error) {
	// column is always one of the two literals above, never caller input.
	result, err := s.db.Exec("UPDATE feed_items SET "+column+" = ? WHERE id = ?", boolToInt(value), id)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", column, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ItemsByFeed retrieves items for one feed, newest first.
func (s *Store) ItemsByFeed(feedID string, opts QueryOptions) ([]*model.FeedItem, error) {
	query := "SELECT " + itemColumns + " FROM feed_items WHERE feed_id = ?"
	args := []interface{}{feedID}
	query, args = applyItemFilters(query, args, opts, "")
	return s.queryItems(query, args...)
}

// ItemsByCategory retrieves items from every feed in a category, newest first.
func (s *Store) ItemsByCategory(category string, opts QueryOptions) ([]*model.FeedItem, error) {
	query := `SELECT fi.id, fi.feed_id, fi.title, fi.url, fi.summary, fi.author,
		fi.published_at, fi.fingerprint, fi.is_read, fi.is_bookmarked, fi.created_at
		FROM feed_items fi
		JOIN feeds f ON fi.feed_id = f.id
		WHERE f.category = ?`
	args := []interface{}{category}
	query, args = applyItemFilters(query, args, opts, "fi.")
	return s.queryItems(query, args...)
}

// Bookmarks retrieves bookmarked items, newest first. A limit of 0 means no limit.
func (s *Store) Bookmarks(limit int) ([]*model.FeedItem, error) {
	query := "SELECT " + itemColumns + " FROM feed_items WHERE is_bookmarked = 1 ORDER BY published_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(query, args...)
}

// Search runs a full-text query over item titles, summaries, and authors.
// The query string is passed through to FTS5 unchanged, so its match syntax
// (quoting, AND/OR, prefix*) is available to callers. Results come back
// newest first.
func (s *Store) Search(query string, limit int) ([]*model.FeedItem, error) {
	sqlQuery := `SELECT fi.id, fi.feed_id, fi.title, fi.url, fi.summary, fi.author,
		fi.published_at, fi.fingerprint, fi.is_read, fi.is_bookmarked, fi.created_at
		FROM feed_items fi
		JOIN feed_items_fts fts ON fi.rowid = fts.rowid
		WHERE feed_items_fts MATCH ?
		ORDER BY fi.published_at DESC`
	args := []interface{}{query}
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}
	items, err := s.queryItems(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return items, nil
}

// Stats returns aggregate counts across feeds and items.
func (s *Store) Stats() (*model.Stats, error) {
	stats := &model.Stats{}
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM feeds),
		(SELECT COUNT(*) FROM feeds WHERE status = 'active'),
		(SELECT COUNT(*) FROM feed_items),
		(SELECT COUNT(*) FROM feed_items WHERE is_read = 0),
		(SELECT COUNT(*) FROM feed_items WHERE is_bookmarked = 1)`,
	).Scan(&stats.TotalFeeds, &stats.ActiveFeeds, &stats.TotalItems, &stats.UnreadItems, &stats.BookmarkedItems)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// DuplicateGroup describes a fingerprint shared by more than one item and
// the designated survivor.
type DuplicateGroup struct {
	Fingerprint string
	Count       int
	KeepID      string
}

// DuplicateGroups finds fingerprints with more than one item. The survivor is
// the smallest item ID in the group: arbitrary but deterministic.
func (s *Store) DuplicateGroups() ([]DuplicateGroup, error) {
	rows, err := s.db.Query(`SELECT fingerprint, COUNT(*) AS cnt, MIN(id) AS keep_id
		FROM feed_items
		GROUP BY fingerprint
		HAVING cnt > 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var g DuplicateGroup
		if err := rows.Scan(&g.Fingerprint, &g.Count, &g.KeepID); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// DeleteDuplicates removes every item carrying the fingerprint except keepID,
// returning the number removed. The delete trigger drops the losers from the
// full-text index in the same unit of work.
func (s *Store) DeleteDuplicates(fingerprint, keepID string) (int, error) {
	result, err := s.db.Exec(
		"DELETE FROM feed_items WHERE fingerprint = ? AND id != ?",
		fingerprint, keepID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicates: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// applyItemFilters appends the shared unread/since/order/limit clauses.
// prefix qualifies column names when the query joins other tables.
func applyItemFilters(query string, args []interface{}, opts QueryOptions, prefix string) (string, []interface{}) {
	if opts.UnreadOnly {
		query += " AND " + prefix + "is_read = 0"
	}
	if opts.SinceTime != nil {
		query += " AND " + prefix + "published_at >= ?"
		args = append(args, *opts.SinceTime)
	}
	query += " ORDER BY " + prefix + "published_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	return query, args
}

func (s *Store) queryItems(query string, args ...interface{}) ([]*model.FeedItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*model.FeedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func scanItem(row scanner) (*model.FeedItem, error) {
	item := &model.FeedItem{}
	var (
		publishedUnix int64
		createdUnix   int64
		isRead        int
		isBookmarked  int
	)

	err := row.Scan(&item.ID, &item.FeedID, &item.Title, &item.URL, &item.Summary, &item.Author,
		&publishedUnix, &item.Fingerprint, &isRead, &isBookmarked, &createdUnix)
	if err != nil {
		return nil, err
	}

	item.PublishedAt = time.Unix(publishedUnix, 0).UTC()
	item.CreatedAt = time.Unix(createdUnix, 0).UTC()
	item.IsRead = intToBool(isRead)
	item.IsBookmarked = intToBool(isBookmarked)

	return item, nil
}

// SQLite doesn't have a BOOLEAN type.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
