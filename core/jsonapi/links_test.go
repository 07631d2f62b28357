// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudite-tech/crudite/core/query"
)

func TestPaginationLinksOffset(t *testing.T) {
	values, err := url.ParseQuery("filter[title_like]=go&sort=-views&page[number]=2&page[size]=10")
	require.NoError(t, err)
	p := &query.Pagination{Number: 2, Size: 10}

	links := PaginationLinks("/articles", values, p, 35, 10, int64(20))
	require.NotNil(t, links)

	// every link keeps the foreign parameters verbatim
	for _, link := range []string{links.Self, links.First, links.Last, links.Prev, links.Next} {
		u, err := url.Parse(link)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "go", q.Get("filter[title_like]"), "link %s lost a filter", link)
		assert.Equal(t, "-views", q.Get("sort"))
		assert.Equal(t, "10", q.Get("page[size]"))
	}

	first, _ := url.Parse(links.First)
	assert.Equal(t, "1", first.Query().Get("page[number]"))
	last, _ := url.Parse(links.Last)
	assert.Equal(t, "4", last.Query().Get("page[number]"), "35 records at size 10 make 4 pages")
	prev, _ := url.Parse(links.Prev)
	assert.Equal(t, "1", prev.Query().Get("page[number]"))
	next, _ := url.Parse(links.Next)
	assert.Equal(t, "3", next.Query().Get("page[number]"))
}

func TestPaginationLinksBoundaries(t *testing.T) {
	values, _ := url.ParseQuery("page[number]=1&page[size]=10")
	links := PaginationLinks("/articles", values, &query.Pagination{Number: 1, Size: 10}, 5, 5, nil)
	assert.Empty(t, links.Prev, "no prev on the first page")
	assert.Empty(t, links.Next, "no next on the only page")
	assert.NotEmpty(t, links.First)
	assert.NotEmpty(t, links.Last)
}

func TestPaginationLinksCursor(t *testing.T) {
	cursor := query.EncodeCursor(int64(50))
	values, _ := url.ParseQuery("page[cursor]=" + cursor + "&page[size]=2&include=author")
	p := &query.Pagination{Cursor: cursor, Size: 2}

	links := PaginationLinks("/articles", values, p, 10, 2, int64(52))
	next, err := url.Parse(links.Next)
	require.NoError(t, err)
	assert.Equal(t, query.EncodeCursor(int64(52)), next.Query().Get("page[cursor]"))
	assert.Equal(t, "author", next.Query().Get("include"))
	assert.Empty(t, next.Query().Get("page[number]"))

	// a short page means there is nothing after it
	links = PaginationLinks("/articles", values, p, 10, 1, int64(52))
	assert.Empty(t, links.Next)
}

func TestCollectionMeta(t *testing.T) {
	meta := CollectionMeta(35, 10, &query.Pagination{Number: 2, Size: 10})
	assert.Equal(t, int64(35), meta["total"])
	assert.Equal(t, 10, meta["count"])
	page, ok := meta["page"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, page["current"])
	assert.Equal(t, 4, page["pages"])

	meta = CollectionMeta(0, 0, &query.Pagination{Number: 1, Size: 10})
	page = meta["page"].(map[string]any)
	assert.Equal(t, 1, page["pages"], "an empty collection still has one page")

	// cursor mode has no current page number
	meta = CollectionMeta(9, 3, &query.Pagination{Cursor: "abc", Size: 3})
	page = meta["page"].(map[string]any)
	assert.NotContains(t, page, "current")

	meta = CollectionMeta(3, 3, nil)
	assert.NotContains(t, meta, "page")
}
