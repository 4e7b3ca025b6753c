package services

import (
	"slices"

	"commerce-insights/internal/models"
)

// Reconcile runs one consistency pass after a filter change and returns the
// corrected state plus the dimensions it reset to wildcard.
//
// Dimensions the user did not just touch are checked first, all against the
// same state, and reset together. Touched dimensions are then checked in
// canonical order against the post-reset state. A reset only ever widens the
// remaining axes, so every value left selected is reachable afterwards.
func Reconcile(store *FactStore, filters models.Filters, touched []models.Dimension, scanLimit int) (models.Filters, []models.Dimension) {
	reset := make([]models.Dimension, 0)
	if store == nil {
		return filters, reset
	}

	reachable := func(state models.Filters, d models.Dimension) bool {
		options, _ := ResolveOptions(store, state, d, scanLimit)
		if d == models.DimensionProduct {
			return slices.Contains(options, state.Product)
		}
		return Contains(options, state.Value(d))
	}

	next := filters
	for _, d := range models.Dimensions {
		if filters.IsWildcard(d) || slices.Contains(touched, d) {
			continue
		}
		if !reachable(filters, d) {
			next = next.Without(d)
			reset = append(reset, d)
		}
	}

	for _, d := range models.Dimensions {
		if next.IsWildcard(d) || !slices.Contains(touched, d) {
			continue
		}
		if !reachable(next, d) {
			next = next.Without(d)
			reset = append(reset, d)
		}
	}

	return next, reset
}
