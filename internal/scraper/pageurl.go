package scraper

import (
	"net/url"
	"strconv"
	"strings"
)

// BuildPageURL returns the address of page n of the listing at start.
// Query-style listings get a page parameter; path-style listings get a
// ";n" segment before the ".html" suffix.
func BuildPageURL(start string, n int) string {
	if n <= 1 {
		return start
	}

	rest, fragment, hasFragment := strings.Cut(start, "#")
	base, query, hasQuery := strings.Cut(rest, "?")
	page := strconv.Itoa(n)

	switch {
	case hasQuery:
		rest = base + "?" + setQueryParam(query, "page", page)
	case strings.HasSuffix(base, ".html"):
		rest = strings.TrimSuffix(base, ".html") + ";" + page + ".html"
	default:
		rest = base + ";" + page
	}

	if hasFragment {
		rest += "#" + fragment
	}
	return rest
}

// setQueryParam replaces key in a raw query, keeping the other parameters
// and their order untouched.
func setQueryParam(query, key, value string) string {
	pair := key + "=" + url.QueryEscape(value)
	parts := make([]string, 0, strings.Count(query, "&")+2)
	replaced := false

	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil && unescaped == key {
			if !replaced {
				parts = append(parts, pair)
				replaced = true
			}
			continue
		}
		parts = append(parts, part)
	}

	if !replaced {
		parts = append(parts, pair)
	}
	return strings.Join(parts, "&")
}
