package opml

import (
	"strings"
	"testing"

	"github.com/robertmeta/feed-agg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOPML_ValidFile(t *testing.T) {
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head>
    <title>Test Feeds</title>
  </head>
  <body>
    <outline text="Tech" title="Tech">
      <outline type="rss" text="Feed 1" title="Feed 1" xmlUrl="https://example.com/feed1" category="tech"/>
      <outline type="rss" text="Feed 2" title="Feed 2" xmlUrl="https://example.com/feed2" category="tech"/>
    </outline>
    <outline type="rss" text="Feed 3" title="Feed 3" xmlUrl="https://example.com/feed3" category="blog"/>
  </body>
</opml>`

	feeds, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	require.Len(t, feeds, 3, "Should parse 3 feeds")

	// Check first feed
	assert.Equal(t, "https://example.com/feed1", feeds[0].URL)
	assert.Equal(t, "Feed 1", feeds[0].Name)
	assert.Equal(t, "tech", feeds[0].Category)

	// Check second feed
	assert.Equal(t, "https://example.com/feed2", feeds[1].URL)
	assert.Equal(t, "tech", feeds[1].Category)

	// Check third feed
	assert.Equal(t, "https://example.com/feed3", feeds[2].URL)
	assert.Equal(t, "blog", feeds[2].Category)
}

func TestParseOPML_EmptyFile(t *testing.T) {
	emptyContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Empty</title></head>
  <body></body>
</opml>`

	feeds, err := Parse(strings.NewReader(emptyContent))
	require.NoError(t, err)
	assert.Len(t, feeds, 0, "Empty OPML should return no feeds")
}

func TestParseOPML_MissingXmlUrl(t *testing.T) {
	// Outline without xmlUrl should be skipped
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline type="rss" text="Valid Feed" xmlUrl="https://example.com/feed"/>
    <outline type="rss" text="Invalid Feed"/>
  </body>
</opml>`

	feeds, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	assert.Len(t, feeds, 1, "Should skip outlines without xmlUrl")
	assert.Equal(t, "https://example.com/feed", feeds[0].URL)
}

func TestParseOPML_CategoryInheritance(t *testing.T) {
	// Nested outlines inherit category from the parent outline's text
	opmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline text="Tech News" title="Tech News">
      <outline type="rss" text="Feed 1" xmlUrl="https://example.com/feed1" category="tech"/>
      <outline type="rss" text="Feed 2" xmlUrl="https://example.com/feed2"/>
    </outline>
  </body>
</opml>`

	feeds, err := Parse(strings.NewReader(opmlContent))
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	// First feed has explicit category
	assert.Equal(t, "tech", feeds[0].Category)

	// Second feed inherits from parent
	assert.Equal(t, "Tech News", feeds[1].Category)
}

func TestGenerateOPML(t *testing.T) {
	feeds := []*model.Feed{
		{URL: "https://example.com/feed1", Name: "Feed 1", Category: "tech"},
		{URL: "https://example.com/feed2", Name: "Feed 2", Category: "tech"},
		{URL: "https://example.com/feed3", Name: "Feed 3", Category: "blog"},
	}

	var buf strings.Builder
	err := Generate(&buf, feeds)
	require.NoError(t, err)

	output := buf.String()

	// Verify output contains XML declaration
	assert.Contains(t, output, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, output, `<opml version="2.0">`)

	// Verify all feeds are present
	assert.Contains(t, output, `xmlUrl="https://example.com/feed1"`)
	assert.Contains(t, output, `xmlUrl="https://example.com/feed2"`)
	assert.Contains(t, output, `xmlUrl="https://example.com/feed3"`)

	// Verify titles
	assert.Contains(t, output, `title="Feed 1"`)
	assert.Contains(t, output, `title="Feed 2"`)
	assert.Contains(t, output, `title="Feed 3"`)

	// One outline per category
	assert.Contains(t, output, `title="tech"`)
	assert.Contains(t, output, `title="blog"`)
}

func TestGenerateOPML_CategoriesSorted(t *testing.T) {
	feeds := []*model.Feed{
		{URL: "https://example.com/z", Name: "Z Feed", Category: "zebra"},
		{URL: "https://example.com/a", Name: "A Feed", Category: "alpha"},
		{URL: "https://example.com/m", Name: "M Feed", Category: "mango"},
	}

	var buf strings.Builder
	err := Generate(&buf, feeds)
	require.NoError(t, err)

	output := buf.String()
	alphaIdx := strings.Index(output, `text="alpha"`)
	mangoIdx := strings.Index(output, `text="mango"`)
	zebraIdx := strings.Index(output, `text="zebra"`)

	require.NotEqual(t, -1, alphaIdx)
	require.NotEqual(t, -1, mangoIdx)
	require.NotEqual(t, -1, zebraIdx)
	assert.Less(t, alphaIdx, mangoIdx, "Categories should be sorted alphabetically")
	assert.Less(t, mangoIdx, zebraIdx, "Categories should be sorted alphabetically")
}

func TestGenerateOPML_EmptyList(t *testing.T) {
	feeds := []*model.Feed{}

	var buf strings.Builder
	err := Generate(&buf, feeds)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `<opml version="2.0">`)
	assert.Contains(t, output, `<body>`)
}

func TestRoundTrip(t *testing.T) {
	// Test that we can generate OPML and parse it back
	originalFeeds := []*model.Feed{
		{URL: "https://example.com/feed1", Name: "Feed 1", Category: "blog"},
		{URL: "https://example.com/feed2", Name: "Feed 2", Category: "tech"},
	}

	// Generate OPML
	var buf strings.Builder
	err := Generate(&buf, originalFeeds)
	require.NoError(t, err)

	// Parse it back; category survives via the grouping outline
	parsedFeeds, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)

	require.Len(t, parsedFeeds, 2)
	assert.Equal(t, originalFeeds[0].URL, parsedFeeds[0].URL)
	assert.Equal(t, originalFeeds[0].Name, parsedFeeds[0].Name)
	assert.Equal(t, originalFeeds[0].Category, parsedFeeds[0].Category)

	assert.Equal(t, originalFeeds[1].URL, parsedFeeds[1].URL)
	assert.Equal(t, originalFeeds[1].Name, parsedFeeds[1].Name)
	assert.Equal(t, originalFeeds[1].Category, parsedFeeds[1].Category)
}

func TestGenerateOPML_SpecialCharacters(t *testing.T) {
	// Special XML characters are escaped by the encoder
	feeds := []*model.Feed{
		{URL: "https://example.com/feed?id=1&type=rss", Name: "Feed with & < >", Category: "test"},
	}

	var buf strings.Builder
	err := Generate(&buf, feeds)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "&amp;")
	assert.NotContains(t, output, `Feed with & < >`)
}
