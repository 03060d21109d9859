package domain

import "strings"

// CategoryOther receives every debit the model did not place anywhere else.
const CategoryOther = "Other"

// Category is one entry of the fixed spending taxonomy.
type Category struct {
	Name        string
	Description string
}

// Categories is the spending taxonomy in display order. The order is also the
// tie-break when two categories have the same total.
var Categories = []Category{
	{"Food & Dining", "restaurants, cafes, takeaway, groceries, supermarkets"},
	{"Entertainment", "streaming, games, movies, events, hobbies"},
	{"Shopping", "retail, online shopping, Amazon, clothing"},
	{"Transportation", "fuel, parking, public transport, Uber/taxis, car expenses"},
	{"Bills & Utilities", "phone, internet, electricity, water, council tax"},
	{"Health & Fitness", "gym, pharmacy, medical, wellness"},
	{"Software & Tech", "apps, subscriptions, software, domains"},
	{"Insurance", "car, home, life, health insurance"},
	{"Travel", "flights, hotels, holidays"},
	{"Personal Care", "beauty, grooming, self-care"},
	{"Education", "courses, books, training"},
	{"Transfers & Payments", "bank transfers, credit card payments (if clearly visible)"},
	{CategoryOther, "anything that doesn't fit above"},
}

// CanonicalCategory returns the taxonomy label matching name, compared
// case-insensitively after trimming. ok is false for labels outside the taxonomy.
func CanonicalCategory(name string) (canonical string, ok bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range Categories {
		if strings.ToUpper(c.Name) == n {
			return c.Name, true
		}
	}
	return "", false
}

// CategoryRank is the position of a canonical label in Categories, or
// len(Categories) if unknown.
func CategoryRank(name string) int {
	for i, c := range Categories {
		if c.Name == name {
			return i
		}
	}
	return len(Categories)
}
