package services

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"commerce-insights/internal/models"
)

var ErrUnknownDimension = errors.New("unknown dimension")

// ResolveOptions returns the values of d reachable given every other active
// filter. d's own selection is never consulted, otherwise a user could not
// discover the alternatives to what is currently chosen.
//
// scanLimit > 0 caps the scan at the first scanLimit facts. That trades
// completeness for latency on very large stores; 0 scans everything.
func ResolveOptions(store *FactStore, filters models.Filters, d models.Dimension, scanLimit int) ([]string, error) {
	if !slices.Contains(models.Dimensions, d) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, d)
	}
	if store == nil {
		return []string{}, nil
	}

	others := filters.Without(d)
	facts := store.facts
	if scanLimit > 0 && scanLimit < len(facts) {
		facts = facts[:scanLimit]
	}

	seen := make(map[string]bool)
	values := make([]string, 0)
	for _, f := range facts {
		if !others.Matches(f) {
			continue
		}
		v := dimensionValue(f, d)
		if v == "" {
			continue
		}
		key := v
		if d != models.DimensionProduct {
			key = strings.ToLower(v)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}

	sortOptions(values, d)
	return values, nil
}

// ResolveAllOptions resolves every dimension against the same filter state.
func ResolveAllOptions(store *FactStore, filters models.Filters, scanLimit int) models.Options {
	resolve := func(d models.Dimension) []string {
		values, _ := ResolveOptions(store, filters, d, scanLimit)
		return values
	}
	return models.Options{
		Years:      resolve(models.DimensionYear),
		Regions:    resolve(models.DimensionRegion),
		Categories: resolve(models.DimensionCategory),
		Products:   resolve(models.DimensionProduct),
	}
}

// Contains reports whether value is among options, case-insensitively.
func Contains(options []string, value string) bool {
	return slices.ContainsFunc(options, func(o string) bool {
		return strings.EqualFold(o, value)
	})
}

func dimensionValue(f models.Fact, d models.Dimension) string {
	switch d {
	case models.DimensionYear:
		if f.OrderDate.IsZero() {
			return ""
		}
		return strconv.Itoa(f.Year())
	case models.DimensionRegion:
		return f.Region
	case models.DimensionCategory:
		return f.Category
	case models.DimensionProduct:
		return f.ProductID
	}
	return ""
}

func sortOptions(values []string, d models.Dimension) {
	if d == models.DimensionYear {
		slices.SortFunc(values, func(a, b string) int {
			x, _ := strconv.Atoi(a)
			y, _ := strconv.Atoi(b)
			return cmp.Compare(x, y)
		})
		return
	}
	slices.SortFunc(values, func(a, b string) int {
		if c := cmp.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}
