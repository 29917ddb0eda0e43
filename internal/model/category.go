package model

import "fmt"

// Category classifies a report. The set is closed.
type Category string

// Categories.
const (
	CategoryElectronics   Category = "Electronics"
	CategoryDocuments     Category = "Documents"
	CategoryPersonalItems Category = "Personal Items"
	CategoryBooks         Category = "Books"
	CategoryClothing      Category = "Clothing"
	CategoryOther         Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryDocuments,
	CategoryPersonalItems,
	CategoryBooks,
	CategoryClothing,
	CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts s into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
	}
	return c, nil
}
