package services

import (
	"cmp"
	"fmt"
	"slices"

	"commerce-insights/internal/models"
)

// BucketOptions controls the "top N + Others" collapse for proportional views.
type BucketOptions struct {
	// MaxGroups is the largest group count passed through untouched.
	MaxGroups int
	// Keep caps how many ranked groups survive on their own.
	Keep int
	// MinShare is the fraction of the total below which a group stops being kept.
	MinShare float64
}

func DefaultBucketOptions() BucketOptions {
	return BucketOptions{MaxGroups: 7, Keep: 6, MinShare: 0.05}
}

// Bucket ranks groups by value and merges the tail into one "Others (N noun)"
// entry. Sets at or below MaxGroups come back unchanged, in their input order.
// The merged value plus the kept values always equals the input total.
func Bucket(groups []models.Slice, opts BucketOptions, noun string) []models.Slice {
	defaults := DefaultBucketOptions()
	if opts.MaxGroups <= 0 {
		opts.MaxGroups = defaults.MaxGroups
	}
	if opts.Keep <= 0 {
		opts.Keep = defaults.Keep
	}

	if len(groups) <= opts.MaxGroups {
		return slices.Clone(groups)
	}

	ranked := slices.Clone(groups)
	slices.SortStableFunc(ranked, func(a, b models.Slice) int {
		return cmp.Compare(b.Value, a.Value)
	})

	var total float64
	for _, g := range ranked {
		total += g.Value
	}

	kept := 0
	for kept < len(ranked) && kept < opts.Keep {
		if total > 0 && ranked[kept].Value/total < opts.MinShare {
			break
		}
		kept++
	}

	result := slices.Clone(ranked[:kept])
	rest := ranked[kept:]
	if len(rest) == 0 {
		return result
	}

	others := models.Slice{Others: true}
	for _, g := range rest {
		others.Value += g.Value
		others.Groups += max(g.Groups, 1)
	}
	others.Label = fmt.Sprintf("Others (%d %s)", others.Groups, noun)
	return append(result, others)
}

func regionSlices(regions []models.RegionRollup) []models.Slice {
	out := make([]models.Slice, 0, len(regions))
	for _, r := range regions {
		out = append(out, models.Slice{Label: r.Region, Value: r.Revenue, Groups: 1})
	}
	return out
}

func categorySlices(categories []models.CategoryRollup) []models.Slice {
	out := make([]models.Slice, 0, len(categories))
	for _, c := range categories {
		out = append(out, models.Slice{Label: c.Category, Value: c.Revenue, Groups: 1})
	}
	return out
}
