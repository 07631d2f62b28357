// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"net/url"
	"strconv"

	"github.com/crudite-tech/crudite/core/query"
)

// PaginationLinks derives the navigation links of a collection response
// by re-serializing the original query string with only the page[...]
// keys replaced; filters, sort and include parameters survive verbatim
// across pages. lastKey is the primary key of the last record on the
// page and feeds the next-cursor in cursor mode.
func PaginationLinks(path string, values url.Values, p *query.Pagination, total int64, pageLen int, lastKey any) *Links {
	links := &Links{Self: requestURL(path, values)}
	if p == nil {
		return links
	}
	pages := totalPages(total, p.Size)

	if p.Cursor == "" {
		links.First = pageURL(path, values, "page[number]", "1")
		links.Last = pageURL(path, values, "page[number]", strconv.Itoa(pages))
		if p.Number > 1 {
			links.Prev = pageURL(path, values, "page[number]", strconv.Itoa(p.Number-1))
		}
		if p.Number < pages {
			links.Next = pageURL(path, values, "page[number]", strconv.Itoa(p.Number+1))
		}
		return links
	}

	links.First = pageURL(path, values, "page[number]", "1")
	if pageLen == p.Size && lastKey != nil {
		links.Next = pageURL(path, values, "page[cursor]", query.EncodeCursor(lastKey))
	}
	return links
}

// CollectionMeta builds the metadata of a collection response: the full
// predicate count, the current page length, and page bookkeeping when
// the request was paginated.
func CollectionMeta(total int64, pageLen int, p *query.Pagination) map[string]any {
	meta := map[string]any{
		"total": total,
		"count": pageLen,
	}
	if p == nil {
		return meta
	}
	page := map[string]any{
		"size":  p.Size,
		"pages": totalPages(total, p.Size),
	}
	if p.Cursor == "" {
		page["current"] = p.Number
	}
	meta["page"] = page
	return meta
}

func totalPages(total int64, size int) int {
	if size < 1 {
		return 1
	}
	pages := int((total + int64(size) - 1) / int64(size))
	if pages < 1 {
		pages = 1
	}
	return pages
}

func requestURL(path string, values url.Values) string {
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// pageURL re-serializes the query with both positional page selectors
// removed and the given one set.
func pageURL(path string, values url.Values, key, value string) string {
	clone := make(url.Values, len(values))
	for k, vv := range values {
		clone[k] = append([]string(nil), vv...)
	}
	clone.Del("page[number]")
	clone.Del("page[cursor]")
	clone.Set(key, value)
	return path + "?" + clone.Encode()
}
