package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Dimension string

const (
	DimensionYear     Dimension = "year"
	DimensionRegion   Dimension = "region"
	DimensionCategory Dimension = "category"
	DimensionProduct  Dimension = "product"
)

// Dimensions lists every filter axis in canonical evaluation order.
var Dimensions = []Dimension{DimensionYear, DimensionRegion, DimensionCategory, DimensionProduct}

// Wildcard is the input spelling of "all values" accepted on every axis.
const Wildcard = "all"

func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

// Filters is the current partial selection. Zero values are wildcards.
type Filters struct {
	Year     int    `json:"year,omitempty"`
	Region   string `json:"region,omitempty"`
	Category string `json:"category,omitempty"`
	Product  string `json:"product,omitempty"`
}

func (f Filters) IsWildcard(d Dimension) bool {
	return f.Value(d) == ""
}

// Value returns the selected value for d, "" when d is a wildcard.
func (f Filters) Value(d Dimension) string {
	switch d {
	case DimensionYear:
		if f.Year == 0 {
			return ""
		}
		return strconv.Itoa(f.Year)
	case DimensionRegion:
		return f.Region
	case DimensionCategory:
		return f.Category
	case DimensionProduct:
		return f.Product
	}
	return ""
}

// Without returns a copy of f with d set back to wildcard.
func (f Filters) Without(d Dimension) Filters {
	switch d {
	case DimensionYear:
		f.Year = 0
	case DimensionRegion:
		f.Region = ""
	case DimensionCategory:
		f.Category = ""
	case DimensionProduct:
		f.Product = ""
	}
	return f
}

// Reset sets every dimension back to wildcard.
func (f *Filters) Reset() {
	*f = Filters{}
}

func (f Filters) IsEmpty() bool {
	return f == Filters{}
}

// Matches applies the four conjunctive predicates to one fact.
func (f Filters) Matches(fact Fact) bool {
	if f.Year != 0 && fact.Year() != f.Year {
		return false
	}
	if f.Region != "" && !strings.EqualFold(fact.Region, f.Region) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(fact.Category, f.Category) {
		return false
	}
	if f.Product != "" && fact.ProductID != f.Product {
		return false
	}
	return true
}

// FilterUpdate is a partial selection change. Nil fields are left untouched;
// "all" or "" selects the wildcard.
type FilterUpdate struct {
	Year     *string `json:"year,omitempty"`
	Region   *string `json:"region,omitempty"`
	Category *string `json:"category,omitempty"`
	Product  *string `json:"product,omitempty"`
}

func (u FilterUpdate) IsEmpty() bool {
	return u.Year == nil && u.Region == nil && u.Category == nil && u.Product == nil
}

// Apply returns the state after u and the dimensions u explicitly set.
// Changing region or category without naming a product resets the product,
// since a product selection is scoped to the combination active when it was made.
func (f Filters) Apply(u FilterUpdate) (Filters, []Dimension, error) {
	next := f
	var touched []Dimension

	if u.Year != nil {
		year, err := parseYear(*u.Year)
		if err != nil {
			return f, nil, err
		}
		next.Year = year
		touched = append(touched, DimensionYear)
	}
	if u.Region != nil {
		next.Region = normalizeValue(*u.Region)
		touched = append(touched, DimensionRegion)
	}
	if u.Category != nil {
		next.Category = normalizeValue(*u.Category)
		touched = append(touched, DimensionCategory)
	}

	scopeChanged := !strings.EqualFold(next.Region, f.Region) || !strings.EqualFold(next.Category, f.Category)
	switch {
	case u.Product != nil:
		next.Product = normalizeValue(*u.Product)
		touched = append(touched, DimensionProduct)
	case scopeChanged:
		next.Product = ""
	}

	return next, touched, nil
}

func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, Wildcard) {
		return ""
	}
	return v
}

func parseYear(v string) (int, error) {
	v = normalizeValue(v)
	if v == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(v)
	if err != nil || year < 1 {
		return 0, fmt.Errorf("invalid year %q", v)
	}
	return year, nil
}

// Set builds a FilterUpdate field value.
func Set(v string) *string {
	return &v
}
