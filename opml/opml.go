// Package opml provides OPML import and export functionality for feed-agg.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/robertmeta/feed-agg/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements (feeds).
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or category in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML file and extracts feeds.
func Parse(r io.Reader) ([]*model.Feed, error) {
	var opml OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&opml); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	return extractFeeds(opml.Body.Outlines, ""), nil
}

// extractFeeds recursively extracts feeds from outlines.
// parentCategory is used for nested outlines that don't specify their own category.
func extractFeeds(outlines []Outline, parentCategory string) []*model.Feed {
	var feeds []*model.Feed

	for _, outline := range outlines {
		// If this outline has an xmlUrl, it's a feed
		if outline.XMLUrl != "" {
			feed := &model.Feed{
				URL:  outline.XMLUrl,
				Name: outline.Title,
			}

			// Use explicit category if provided, otherwise inherit from parent
			if outline.Category != "" {
				feed.Category = outline.Category
			} else if parentCategory != "" {
				feed.Category = parentCategory
			}

			// Fallback to text if title is empty
			if feed.Name == "" {
				feed.Name = outline.Text
			}

			feeds = append(feeds, feed)
		}

		// Recursively process nested outlines
		if len(outline.Outlines) > 0 {
			// Use outline text as category for children if they don't have one
			categoryForChildren := outline.Text
			if categoryForChildren == "" {
				categoryForChildren = parentCategory
			}

			childFeeds := extractFeeds(outline.Outlines, categoryForChildren)
			feeds = append(feeds, childFeeds...)
		}
	}

	return feeds
}

// Generate creates an OPML document from a list of feeds, one outline per
// category sorted alphabetically, each containing its feeds.
func Generate(w io.Writer, feeds []*model.Feed) error {
	// Group feeds by category
	categories := make(map[string][]*model.Feed)
	for _, feed := range feeds {
		categories[feed.Category] = append(categories[feed.Category], feed)
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	opml := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "feed-agg Subscriptions",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: []Outline{},
		},
	}

	for _, category := range names {
		categoryOutline := Outline{
			Text:     category,
			Title:    category,
			Outlines: []Outline{},
		}

		for _, feed := range categories[category] {
			feedOutline := Outline{
				Type:   "rss",
				Text:   feed.Name,
				Title:  feed.Name,
				XMLUrl: feed.URL,
			}
			categoryOutline.Outlines = append(categoryOutline.Outlines, feedOutline)
		}

		opml.Body.Outlines = append(opml.Body.Outlines, categoryOutline)
	}

	// Write XML with indentation
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	// Write XML declaration
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	// Encode OPML
	if err := encoder.Encode(opml); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	// Add final newline
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}

	return nil
}
