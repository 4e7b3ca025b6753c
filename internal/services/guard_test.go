package services

import (
	"slices"
	"testing"

	"commerce-insights/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestReconcile(t *testing.T) {
	// A/X, B/Y, B/X: category A has nothing in region Y.
	facts := []models.Fact{
		aggregateFact("A", "X", 2017, 100),
		aggregateFact("B", "Y", 2018, 50),
		aggregateFact("B", "X", 2017, 200),
	}
	store := NewFactStore(facts)

	tests := []struct {
		name      string
		filters   models.Filters
		touched   []models.Dimension
		want      models.Filters
		wantReset []models.Dimension
	}{
		{
			name:      "other dimension reset when region changes",
			filters:   models.Filters{Category: "A", Region: "Y"},
			touched:   []models.Dimension{models.DimensionRegion},
			want:      models.Filters{Region: "Y"},
			wantReset: []models.Dimension{models.DimensionCategory},
		},
		{
			name:      "touched value unreachable on its own",
			filters:   models.Filters{Region: "Q"},
			touched:   []models.Dimension{models.DimensionRegion},
			want:      models.Filters{},
			wantReset: []models.Dimension{models.DimensionRegion},
		},
		{
			name:      "consistent state untouched",
			filters:   models.Filters{Year: 2017, Category: "b"},
			touched:   []models.Dimension{models.DimensionCategory},
			want:      models.Filters{Year: 2017, Category: "b"},
			wantReset: []models.Dimension{},
		},
		{
			name:      "untouched values all checked against the incoming state",
			filters:   models.Filters{Year: 2018, Region: "X", Category: "A"},
			touched:   nil,
			want:      models.Filters{},
			wantReset: []models.Dimension{models.DimensionYear, models.DimensionRegion, models.DimensionCategory},
		},
		{
			name:      "touched year kept, untouched category dropped",
			filters:   models.Filters{Year: 2018, Category: "A"},
			touched:   []models.Dimension{models.DimensionYear},
			want:      models.Filters{Year: 2018},
			wantReset: []models.Dimension{models.DimensionCategory},
		},
		{
			name:      "wildcards never reset",
			filters:   models.Filters{},
			touched:   []models.Dimension{models.DimensionYear, models.DimensionRegion},
			want:      models.Filters{},
			wantReset: []models.Dimension{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reset := Reconcile(store, tt.filters, tt.touched, 0)
			if got != tt.want {
				t.Errorf("Reconcile filters = %+v, want %+v", got, tt.want)
			}
			if diff := cmp.Diff(tt.wantReset, reset); diff != "" {
				t.Errorf("reset dimensions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcile_EverySelectionReachable(t *testing.T) {
	store := NewFactStore(propertyFacts())
	touchedSets := [][]models.Dimension{nil}
	for _, d := range models.Dimensions {
		touchedSets = append(touchedSets, []models.Dimension{d})
	}
	touchedSets = append(touchedSets, models.Dimensions)

	for _, filters := range filterSpace() {
		for _, touched := range touchedSets {
			got, reset := Reconcile(store, filters, touched, 0)

			for _, d := range models.Dimensions {
				if got.IsWildcard(d) {
					continue
				}
				options, _ := ResolveOptions(store, got, d, 0)
				reachable := Contains(options, got.Value(d))
				if d == models.DimensionProduct {
					reachable = slices.Contains(options, got.Product)
				}
				if !reachable {
					t.Fatalf("Reconcile(%+v, %v) left %s=%q unreachable", filters, touched, d, got.Value(d))
				}
			}

			for _, d := range reset {
				if filters.IsWildcard(d) {
					t.Fatalf("Reconcile(%+v) reset wildcard dimension %s", filters, d)
				}
			}
		}
	}
}
