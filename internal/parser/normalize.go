package parser

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trazkul/analytics-prom/internal/models"
)

// Presence phrases that mean the item can be ordered right now.
var allowedPresence = map[string]struct{}{
	"в наличии":           {},
	"готов к отправке":    {},
	"готово к отправке":   {},
	"готово до відправки": {},
	"в наявності":         {},
}

var catalogPresenceValues = map[string]string{
	"presence_for_sure":  "готово к отправке",
	"presence_sure":      "готово к отправке",
	"presence_available": "в наличии",
	"presence_wait":      "ожидается",
	"presence_preorder":  "под заказ",
}

var presenceCodes = map[string]string{
	"avail":     "в наличии",
	"available": "в наличии",
	"order":     "под заказ",
	"wait":      "ожидается",
	"in_stock":  "в наличии",
}

var companyNameKeys = []string{"name", "title", "companyName"}

// CompanyLookup maps company identifiers to display names.
type CompanyLookup map[string]string

type presenceStrategy func(entry, product map[string]any) string

type sellerStrategy func(entry, product map[string]any, companies CompanyLookup) string

var presenceStrategies = []presenceStrategy{
	presenceFromTitle,
	presenceFromCatalogValue,
	presenceFromCode,
}

var sellerStrategies = []sellerStrategy{
	sellerFromCompanyInfo,
	sellerFromOwnFields,
	sellerFromCompanyID,
}

// NormalizeProduct maps one raw listing entry into a Product. The boolean is
// false when the entry is not publishable: presence outside the allowed set,
// no usable price or no derivable URL.
func NormalizeProduct(raw any, base *url.URL, companies CompanyLookup) (models.Product, bool) {
	entry := asObject(raw)
	if entry == nil {
		return models.Product{}, false
	}
	product := asObject(entry["product"])

	presence := resolvePresence(entry, product)
	if !IsAllowedPresence(presence) {
		return models.Product{}, false
	}

	price := NormalizePrice(firstText(product["discountedPrice"], product["price"]))
	if price == "" {
		return models.Product{}, false
	}

	productURL, ok := resolveURL(product, base)
	if !ok {
		return models.Product{}, false
	}

	return models.Product{
		URL:          productURL,
		Name:         text(product["name"]),
		Bought:       text(product["ordersCount"]),
		Price:        price,
		Presence:     presence,
		Seller:       resolveSeller(entry, product, companies),
		Manufacturer: manufacturerName(product),
	}, true
}

// IsAllowedPresence reports whether a presence phrase means "ready to ship".
func IsAllowedPresence(presence string) bool {
	normalized := cases.Lower(language.Russian).String(strings.TrimSpace(presence))
	_, ok := allowedPresence[normalized]
	return ok
}

func resolvePresence(entry, product map[string]any) string {
	for _, strategy := range presenceStrategies {
		if presence := strings.TrimSpace(strategy(entry, product)); presence != "" {
			return presence
		}
	}
	return ""
}

func presenceFromTitle(entry, product map[string]any) string {
	return firstText(
		objectAt(entry, "catalogPresence")["title"],
		objectAt(product, "catalogPresence")["title"],
	)
}

func presenceFromCatalogValue(entry, product map[string]any) string {
	code := firstText(
		objectAt(entry, "catalogPresence")["value"],
		objectAt(product, "catalogPresence")["value"],
	)
	return catalogPresenceValues[strings.ToLower(code)]
}

func presenceFromCode(entry, product map[string]any) string {
	code := firstText(
		objectAt(entry, "presence")["presence"],
		objectAt(product, "presence")["presence"],
	)
	return presenceCodes[strings.ToLower(code)]
}

// NormalizePrice reduces a displayed price to digits with "," as the decimal
// mark. The last "." or "," is the decimal point, earlier ones are grouping.
// "1 234,50 ₴" becomes "1234,50"; a string without digits becomes "".
func NormalizePrice(raw string) string {
	// Spaces, NBSP, narrow NBSP and currency signs all fall out here.
	filtered := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, raw)

	sep := strings.LastIndexAny(filtered, ".,")
	if sep == -1 {
		return filtered
	}

	integer := digitsOnly(filtered[:sep])
	fraction := digitsOnly(filtered[sep+1:])
	if integer == "" && fraction == "" {
		return ""
	}
	if integer == "" {
		integer = "0"
	}
	if fraction != "" {
		return integer + "," + fraction
	}
	return integer
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func resolveURL(product map[string]any, base *url.URL) (string, bool) {
	ref := firstText(product["urlForProductCatalog"], product["url"])
	if ref == "" {
		id := text(product["id"])
		slug := firstText(product["urlText"], product["slug"])
		if id != "" && slug != "" {
			ref = fmt.Sprintf("/p%s-%s.html", id, slug)
		}
	}
	if ref == "" {
		return "", false
	}

	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	if base == nil {
		return parsed.String(), parsed.IsAbs()
	}
	return base.ResolveReference(parsed).String(), true
}

func resolveSeller(entry, product map[string]any, companies CompanyLookup) string {
	for _, strategy := range sellerStrategies {
		if seller := strategy(entry, product, companies); seller != "" {
			return seller
		}
	}
	return ""
}

func sellerFromCompanyInfo(entry, product map[string]any, _ CompanyLookup) string {
	return companyName(companyInfo(entry, product))
}

func sellerFromOwnFields(entry, product map[string]any, _ CompanyLookup) string {
	if name := companyName(entry); name != "" {
		return name
	}
	return companyName(product)
}

func sellerFromCompanyID(entry, product map[string]any, companies CompanyLookup) string {
	if len(companies) == 0 {
		return ""
	}
	id := firstText(entry["companyId"], companyInfo(entry, product)["id"], product["companyId"])
	if id == "" {
		return ""
	}
	return companies[id]
}

func companyInfo(entry, product map[string]any) map[string]any {
	candidates := []map[string]any{
		objectAt(entry, "company"),
		objectAt(product, "company"),
		objectAt(entry, "companyInfo"),
		objectAt(product, "companyInfo"),
	}
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return nil
}

func companyName(src map[string]any) string {
	for _, key := range companyNameKeys {
		if name, ok := src[key].(string); ok {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func manufacturerName(product map[string]any) string {
	name, _ := objectAt(product, "manufacturerInfo")["name"].(string)
	return strings.TrimSpace(name)
}

// BuildCompanyLookup collects company names from the listing's company
// tables. Tables may be maps keyed by id or plain lists.
func BuildCompanyLookup(entry *ListingEntry) CompanyLookup {
	lookup := CompanyLookup{}
	if entry == nil {
		return lookup
	}

	containers := []any{
		entry.Page["companies"],
		entry.Page["companiesMap"],
		entry.Listing["companies"],
		entry.Listing["companiesMap"],
	}
	for _, container := range containers {
		switch c := container.(type) {
		case map[string]any:
			for key, value := range c {
				lookup.register(asObject(value), key)
			}
		case []any:
			for _, value := range c {
				lookup.register(asObject(value), "")
			}
		}
	}

	return lookup
}

func (l CompanyLookup) register(company map[string]any, key string) {
	if company == nil {
		return
	}

	// Map tables are keyed by id; the key stands in for a missing id field.
	var id string
	if key != "" {
		id = firstText(company["id"], key)
	} else {
		id = firstText(company["id"], company["companyId"])
	}
	if id == "" {
		return
	}

	if name := strings.TrimSpace(firstText(company["name"], company["title"])); name != "" {
		l[id] = name
	}
}
