package core

import "strings"

// Category is one of a closed set of labels. Anything outside the set is
// folded into Others when it enters the system.
type Category string

const (
	Shopping      Category = "Shopping"
	Food          Category = "Food"
	Travel        Category = "Travel"
	Clothes       Category = "Clothes"
	Groceries     Category = "Groceries"
	Rent          Category = "Rent"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Study         Category = "Study"
	Cosmetics     Category = "Cosmetics"
	Healthcare    Category = "Healthcare"
	Others        Category = "Others"
)

// DefaultCategory preselected on the entry form.
const DefaultCategory = Shopping

var categories = []Category{
	Shopping, Food, Travel, Clothes, Groceries, Rent,
	Bills, Entertainment, Study, Cosmetics, Healthcare, Others,
}

// Categories returns the labels in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory matches s case-insensitively against the known labels.
// Empty or unknown labels become Others.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return Others
}

func (c Category) String() string {
	return string(c)
}
