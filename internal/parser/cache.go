package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrMarkerNotFound = errors.New("marker not found")
	ErrMalformedCache = errors.New("malformed cache")
	ErrNoListing      = errors.New("no listing found")
)

var (
	// stateMarker matches the assignment up to the opening brace of the state object.
	stateMarker = regexp.MustCompile(`window\.ApolloCacheState\s*=\s*\{`)

	// Listing query kinds in order of trust when a page carries several.
	listingKeyPriorities = []string{
		"CompanyListingQuery",
		"SearchProductsListingQuery",
		"CategoryListingQuery",
	}
)

const fastCacheKey = "_FAST_CACHE"

// ExtractionError reports a page whose embedded listing could not be used.
// Kind is one of ErrMarkerNotFound, ErrMalformedCache or ErrNoListing.
type ExtractionError struct {
	Kind error
	Keys []string
	Err  error
}

func (e *ExtractionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case errors.Is(e.Kind, ErrNoListing):
		return fmt.Sprintf("%s (keys: %s)", e.Kind, strings.Join(e.Keys, ", "))
	default:
		return e.Kind.Error()
	}
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// ListingEntry is the fast-cache query result chosen for a page.
type ListingEntry struct {
	Key      string
	Raw      map[string]any
	Listing  map[string]any
	Page     map[string]any
	Products []any
}

// DecodeState finds the embedded state assignment and decodes the object
// that follows it. Numbers are kept as json.Number. A script body that does
// not decode, for instance one cut short by a "</script>" inside a string,
// is retried on the raw document.
func DecodeState(html string) (map[string]any, error) {
	candidates := stateCandidates(html)
	if len(candidates) == 0 {
		return nil, &ExtractionError{Kind: ErrMarkerNotFound}
	}

	var lastErr error
	for _, src := range candidates {
		state, err := decodeObject(src)
		if err == nil {
			return state, nil
		}
		lastErr = err
	}
	return nil, &ExtractionError{Kind: ErrMalformedCache, Err: lastErr}
}

func decodeObject(src string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()

	var state map[string]any
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	return state, nil
}

// stateCandidates returns the text starting at the state object's opening
// brace, first from the script body holding the marker, then from the raw
// document.
func stateCandidates(html string) []string {
	var candidates []string

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			body := s.Text()
			if loc := stateMarker.FindStringIndex(body); loc != nil {
				candidates = append(candidates, body[loc[1]-1:])
				return false
			}
			return true
		})
	}

	if loc := stateMarker.FindStringIndex(html); loc != nil {
		raw := html[loc[1]-1:]
		if len(candidates) == 0 || candidates[0] != raw {
			candidates = append(candidates, raw)
		}
	}
	return candidates
}

// ExtractListingEntry returns the listing query result to trust for a page.
func ExtractListingEntry(html string) (*ListingEntry, error) {
	state, err := DecodeState(html)
	if err != nil {
		return nil, err
	}
	return SelectListing(state)
}

// SelectListing scans the fast cache for listing-shaped entries and picks one
// by key priority, breaking ties on the smallest key.
func SelectListing(state map[string]any) (*ListingEntry, error) {
	fastCache := asObject(state[fastCacheKey])

	var best *ListingEntry
	bestPriority := 0
	for key, value := range fastCache {
		candidate, ok := asListing(key, value)
		if !ok {
			continue
		}

		priority := listingPriority(key)
		if best == nil || priority < bestPriority || (priority == bestPriority && key < best.Key) {
			best = candidate
			bestPriority = priority
		}
	}

	if best == nil {
		keys := make([]string, 0, len(fastCache))
		for key := range fastCache {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil, &ExtractionError{Kind: ErrNoListing, Keys: keys}
	}

	return best, nil
}

func asListing(key string, value any) (*ListingEntry, bool) {
	raw := asObject(value)
	listing := objectAt(raw, "result", "listing")
	page := objectAt(listing, "page")
	if page == nil {
		return nil, false
	}

	products, ok := page["products"].([]any)
	if !ok {
		return nil, false
	}

	return &ListingEntry{
		Key:      key,
		Raw:      raw,
		Listing:  listing,
		Page:     page,
		Products: products,
	}, true
}

func listingPriority(key string) int {
	for i, token := range listingKeyPriorities {
		if strings.Contains(key, token) {
			return i
		}
	}
	return len(listingKeyPriorities)
}

// ExtractManufacturer reads the manufacturer name from a product page's
// embedded state. A page without one yields an empty string.
func ExtractManufacturer(html string) (string, error) {
	state, err := DecodeState(html)
	if err != nil {
		return "", err
	}

	fastCache := asObject(state[fastCacheKey])
	keys := make([]string, 0, len(fastCache))
	for key := range fastCache {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		product := objectAt(asObject(fastCache[key]), "result", "product")
		if product == nil {
			continue
		}
		if name := manufacturerName(product); name != "" {
			return name, nil
		}
	}

	return "", nil
}
