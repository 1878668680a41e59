package engine

import (
	"finch/internal/core"
)

// categoryTable is one spending category with its curated merchant
// substrings. Tables are data, not code: they are iterated in declaration
// order and the first matching table wins.
type categoryTable struct {
	category string
	patterns []string
}

var categoryTables = []categoryTable{
	{"Dining", []string{
		"restaurant", "cafe", "coffee", "starbucks", "dunkin", "mcdonald",
		"burger", "pizza", "chipotle", "taco", "subway", "wendy", "kfc",
		"doordash", "grubhub", "ubereats", "uber eats", "bar & grill",
		"diner", "bakery", "sushi", "thai", "brewery",
	}},
	{"Groceries", []string{
		"grocery", "supermarket", "whole foods", "trader joe", "safeway",
		"kroger", "aldi", "wegmans", "publix", "costco", "food lion",
		"sprouts", "instacart", "market",
	}},
	{"Shopping", []string{
		"amazon", "amzn", "walmart", "target", "best buy", "ebay", "etsy",
		"ikea", "home depot", "lowes", "macys", "nordstrom", "nike",
		"apple store", "apple.com",
	}},
	{"Transportation", []string{
		"uber", "lyft", "taxi", "shell", "chevron", "exxon", "mobil", "bp ",
		"gas station", "fuel", "parking", "toll", "metro", "transit",
		"amtrak",
	}},
	{"Bills & Utilities", []string{
		"electric", "water", "utility", "utilities", "internet", "comcast",
		"xfinity", "verizon", "at&t", "t-mobile", "sewer", "gas co",
		"insurance",
	}},
	{"Entertainment", []string{
		"cinema", "movie", "theater", "theatre", "concert", "ticketmaster",
		"steam", "playstation", "xbox", "nintendo", "amc ",
	}},
	{"Health & Fitness", []string{
		"pharmacy", "cvs", "walgreens", "rite aid", "gym", "fitness",
		"medical", "dental", "doctor", "clinic", "hospital",
	}},
	{"Travel", []string{
		"airline", "airways", "delta air", "united air", "southwest",
		"hotel", "marriott", "hilton", "hyatt", "airbnb", "expedia",
		"booking.com",
	}},
	{"Subscriptions", []string{
		"netflix", "spotify", "hulu", "disney+", "hbo", "youtube premium",
		"apple music", "audible", "patreon", "substack", "icloud",
		"subscription",
	}},
}

// MatchCategory assigns a spending category to an expense-shaped
// transaction: negative amount, not a transfer, not income, and not already
// classified by a manual action or a payee rule. User category rules are
// consulted before the built-in tables. The empty string means no opinion.
func MatchCategory(tx core.Transaction, rules []core.CategoryRule) string {
	if !tx.Amount.IsNegative() {
		return ""
	}
	if equalFold(tx.Category, core.CategoryTransfer) || equalFold(tx.Category, core.CategoryIncome) {
		return ""
	}
	// Manual and rule-based assignments are never silently overwritten.
	if tx.Source >= core.SourceManual {
		return ""
	}

	for _, rule := range rules {
		if matchCategoryRule(tx, rule) {
			return rule.Category
		}
	}

	for _, table := range categoryTables {
		for _, pattern := range table.patterns {
			if containsFold(tx.Description, pattern) || containsFold(tx.Payee, pattern) {
				return table.category
			}
		}
	}
	return ""
}
