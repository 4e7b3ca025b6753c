package services

import (
	"math"
	"slices"
	"strconv"
	"testing"
	"time"

	"commerce-insights/internal/config"
	"commerce-insights/internal/models"
	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T {
	return &v
}

func aggregateFact(category, region string, year int, revenue float64) models.Fact {
	return models.Fact{
		Source:    models.SourceAggregate,
		Category:  category,
		Region:    region,
		OrderDate: time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC),
		Orders:    1,
		Revenue:   revenue,
		Price:     revenue,
	}
}

type catalogRow struct {
	product   string
	category  string
	region    string
	price     float64
	shipping  float64
	weight    float64
	rating    int
	delivery  float64
	estimated float64
}

func catalogFact(s catalogRow) models.Fact {
	return models.Fact{
		ProductID:     s.product,
		Source:        models.SourceCatalog,
		Category:      s.category,
		Region:        s.region,
		OrderDate:     time.Date(2017, time.June, 10, 0, 0, 0, 0, time.UTC),
		Orders:        1,
		Revenue:       s.price,
		Price:         s.price,
		ShippingCost:  ptr(s.shipping),
		Weight:        ptr(s.weight),
		Rating:        ptr(s.rating),
		DeliveryDays:  ptr(s.delivery),
		EstimatedDays: ptr(s.estimated),
	}
}

// scenarioFacts is the three-record set: A/X 100, A/Y 50, B/X 200.
func scenarioFacts() []models.Fact {
	return []models.Fact{
		aggregateFact("A", "X", 2017, 100),
		aggregateFact("A", "Y", 2017, 50),
		aggregateFact("B", "X", 2017, 200),
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, facts []models.Fact, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewEngine(NewFactStore(facts), opts...)
}

func TestCompute_RegionScenario(t *testing.T) {
	e := newTestEngine(t, scenarioFacts())

	snap := e.Compute(models.Filters{Region: "x"})

	if snap.RecordCount != 2 || snap.Empty {
		t.Fatalf("RecordCount = %d, Empty = %v; want 2, false", snap.RecordCount, snap.Empty)
	}
	if snap.KPIs.TotalRevenue != 300 {
		t.Errorf("TotalRevenue = %v, want 300", snap.KPIs.TotalRevenue)
	}
	if snap.KPIs.AverageProductPrice != 150 {
		t.Errorf("AverageProductPrice = %v, want 150", snap.KPIs.AverageProductPrice)
	}

	gotCategories := make(map[string]float64)
	for _, c := range snap.Categories {
		gotCategories[c.Category] = c.Revenue
	}
	if diff := cmp.Diff(map[string]float64{"A": 100, "B": 200}, gotCategories); diff != "" {
		t.Errorf("category rollup mismatch (-want +got):\n%s", diff)
	}
	if snap.Categories[0].Category != "B" {
		t.Errorf("categories not sorted by revenue: %+v", snap.Categories)
	}

	wantRegions := []models.RegionRollup{{Region: "X", Orders: 2, Revenue: 300}}
	if diff := cmp.Diff(wantRegions, snap.Regions); diff != "" {
		t.Errorf("region rollup mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_EmptySelectionFallsBackToGlobal(t *testing.T) {
	e := newTestEngine(t, scenarioFacts())

	snap := e.Compute(models.Filters{Category: "A", Region: "Z"})

	if !snap.Empty || snap.RecordCount != 0 {
		t.Fatalf("expected empty snapshot, got %d records", snap.RecordCount)
	}
	if diff := cmp.Diff(e.Global(), snap.KPIs); diff != "" {
		t.Errorf("KPIs should equal global snapshot (-want +got):\n%s", diff)
	}
	if snap.KPIs.TotalRevenue != 350 || snap.KPIs.TotalOrders != 3 {
		t.Errorf("global totals = %v/%d, want 350/3", snap.KPIs.TotalRevenue, snap.KPIs.TotalOrders)
	}
	if snap.KPIs.AverageProductPrice != 116.67 {
		t.Errorf("AverageProductPrice = %v, want 116.67", snap.KPIs.AverageProductPrice)
	}

	if snap.Monthly == nil || len(snap.Monthly) != 0 {
		t.Errorf("Monthly = %v, want empty non-nil", snap.Monthly)
	}
	if snap.Categories == nil || snap.Regions == nil || snap.RegionShare == nil || snap.CategoryShare == nil {
		t.Error("empty snapshot rollups must be non-nil")
	}
	if len(snap.Options.Categories) != 0 || len(snap.Options.Years) != 0 {
		t.Errorf("options under region Z = %+v, want no categories or years", snap.Options)
	}
	if diff := cmp.Diff([]string{"X", "Y"}, snap.Options.Regions); diff != "" {
		t.Errorf("region options given category A (-want +got):\n%s", diff)
	}
}

func TestCompute_KPIs(t *testing.T) {
	facts := []models.Fact{
		catalogFact(catalogRow{product: "p1", category: "toys", region: "SP", price: 100, shipping: 10, weight: 2, rating: 5, delivery: 5, estimated: 10}),
		catalogFact(catalogRow{product: "p2", category: "toys", region: "SP", price: 50, shipping: 20, weight: 0, rating: 2, delivery: 12, estimated: 10}),
	}
	e := newTestEngine(t, facts)

	got := e.Compute(models.Filters{}).KPIs
	want := models.KPIs{
		TotalOrders:              2,
		TotalRevenue:             150,
		AverageProductPrice:      75,
		AverageDeliveryTime:      8.5,
		AverageCustomerRating:    3.5,
		PercentLateDeliveries:    50,
		NegativeReviews:          1,
		AverageShippingCost:      15,
		AverageProfitRatio:       0.75,
		AverageWeightProfitRatio: 45,
		AveragePricePerCategory:  75,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("KPIs mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_ProductViews(t *testing.T) {
	facts := []models.Fact{
		catalogFact(catalogRow{product: "p1", category: "toys", region: "SP", price: 100, shipping: 10, weight: 2, rating: 5, delivery: 5, estimated: 10}),
		catalogFact(catalogRow{product: "p2", category: "toys", region: "SP", price: 50, shipping: 20, weight: 0, rating: 2, delivery: 12, estimated: 10}),
		catalogFact(catalogRow{product: "p3", category: "books", region: "RJ", price: 30, shipping: 5, weight: 1, rating: 4, delivery: 3, estimated: 4}),
		catalogFact(catalogRow{product: "p4", category: "books", region: "RJ", price: 30, shipping: 5, weight: 1, rating: 5, delivery: 9, estimated: 4}),
	}
	e := newTestEngine(t, facts)
	snap := e.Compute(models.Filters{})

	wantDist := []models.RatingCount{
		{Rating: 1, Count: 0},
		{Rating: 2, Count: 1},
		{Rating: 3, Count: 0},
		{Rating: 4, Count: 1},
		{Rating: 5, Count: 2},
	}
	if diff := cmp.Diff(wantDist, snap.RatingDistribution); diff != "" {
		t.Errorf("rating distribution mismatch (-want +got):\n%s", diff)
	}

	ids := func(list []models.ProductSummary) []string {
		out := make([]string, 0, len(list))
		for _, p := range list {
			out = append(out, p.ProductID)
		}
		return out
	}

	// Ties on rating: best prefers faster delivery, worst prefers slower.
	if diff := cmp.Diff([]string{"p1", "p4", "p3", "p2"}, ids(snap.BestRated)); diff != "" {
		t.Errorf("best rated mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p2", "p3", "p4", "p1"}, ids(snap.WorstRated)); diff != "" {
		t.Errorf("worst rated mismatch (-want +got):\n%s", diff)
	}

	// p2 is excluded for rating and for its zero weight.
	if diff := cmp.Diff([]string{"p1", "p3", "p4"}, ids(snap.MostProfitable)); diff != "" {
		t.Errorf("most profitable mismatch (-want +got):\n%s", diff)
	}
	if !snap.MostProfitable[0].OnTime || snap.MostProfitable[2].OnTime {
		t.Errorf("on-time flags wrong: %+v", snap.MostProfitable)
	}
	if snap.MostProfitable[0].WeightMargin != 45 {
		t.Errorf("p1 weight margin = %v, want 45", snap.MostProfitable[0].WeightMargin)
	}
}

func TestCompute_TopProductsLimit(t *testing.T) {
	var facts []models.Fact
	for i := range 8 {
		facts = append(facts, catalogFact(catalogRow{
			product: "p" + strconv.Itoa(i), category: "toys", region: "SP",
			price: 10, shipping: 1, weight: 1, rating: i%5 + 1, delivery: 1, estimated: 2,
		}))
	}
	e := newTestEngine(t, facts, WithTopProducts(3))
	snap := e.Compute(models.Filters{})

	if len(snap.BestRated) != 3 || len(snap.WorstRated) != 3 {
		t.Errorf("got %d best / %d worst, want 3 each", len(snap.BestRated), len(snap.WorstRated))
	}
}

func TestCompute_CategoryFallbacks(t *testing.T) {
	facts := []models.Fact{
		catalogFact(catalogRow{product: "p1", category: "toys", region: "SP", price: 100, shipping: 10, weight: 2, rating: 5, delivery: 5, estimated: 10}),
		aggregateFact("books", "SP", 2017, 40),
	}
	e := newTestEngine(t, facts)

	snap := e.Compute(models.Filters{})
	var books models.CategoryRollup
	for _, c := range snap.Categories {
		if c.Category == "books" {
			books = c
		}
	}
	want := models.CategoryRollup{
		Category:            "books",
		Orders:              1,
		Revenue:             40,
		AveragePrice:        40,
		AverageRating:       5,
		AverageDeliveryTime: 5,
	}
	if diff := cmp.Diff(want, books); diff != "" {
		t.Errorf("books rollup mismatch (-want +got):\n%s", diff)
	}

	filtered := e.Compute(models.Filters{Category: "books"}).KPIs
	if filtered.AverageCustomerRating != 5 || filtered.AverageDeliveryTime != 5 {
		t.Errorf("filtered KPIs should fall back to global rating/delivery, got %+v", filtered)
	}
	if filtered.TotalRevenue != 40 || filtered.NegativeReviews != 0 {
		t.Errorf("filtered totals = %+v", filtered)
	}
}

func TestCompute_MonthlyChronological(t *testing.T) {
	facts := []models.Fact{
		aggregateFact("A", "X", 2018, 10),
		aggregateFact("A", "X", 2016, 20),
		aggregateFact("A", "X", 2017, 30),
	}
	e := newTestEngine(t, facts)

	var months []string
	for _, m := range e.Compute(models.Filters{}).Monthly {
		months = append(months, m.Month)
	}
	if diff := cmp.Diff([]string{"2016-03", "2017-03", "2018-03"}, months); diff != "" {
		t.Errorf("monthly order mismatch (-want +got):\n%s", diff)
	}
}

func propertyFacts() []models.Fact {
	facts := []models.Fact{
		aggregateFact("A", "X", 2016, 120),
		aggregateFact("A", "Y", 2017, 75.5),
		aggregateFact("B", "X", 2017, 210),
		aggregateFact("b", "Z", 2018, 0),
		aggregateFact("C", "Y", 2018, 33.3),
		catalogFact(catalogRow{product: "p1", category: "A", region: "X", price: 10, shipping: 12, weight: 0.5, rating: 1, delivery: 20, estimated: 15}),
		catalogFact(catalogRow{product: "p2", category: "C", region: "Z", price: 0, shipping: 3, weight: 0, rating: 4, delivery: 2, estimated: 9}),
	}
	facts[6].Rating = nil
	facts[6].DeliveryDays = nil
	return facts
}

// filterSpace enumerates every filter combination over the values present
// plus one unreachable value per axis.
func filterSpace() []models.Filters {
	years := []int{0, 2016, 2017, 2018, 1999}
	regions := []string{"", "X", "y", "Z", "Q"}
	categories := []string{"", "A", "B", "c", "none"}
	products := []string{"", "p1", "p2", "missing"}

	var out []models.Filters
	for _, y := range years {
		for _, r := range regions {
			for _, c := range categories {
				for _, p := range products {
					out = append(out, models.Filters{Year: y, Region: r, Category: c, Product: p})
				}
			}
		}
	}
	return out
}

func factIDs(facts []models.Fact) []int {
	ids := make([]int, 0, len(facts))
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	slices.Sort(ids)
	return ids
}

func TestFilter_Conjunctive(t *testing.T) {
	e := newTestEngine(t, propertyFacts())

	for _, filters := range filterSpace() {
		want := factIDs(e.Filter(models.Filters{}))
		for _, d := range models.Dimensions {
			if filters.IsWildcard(d) {
				continue
			}
			single := models.Filters{}
			switch d {
			case models.DimensionYear:
				single.Year = filters.Year
			case models.DimensionRegion:
				single.Region = filters.Region
			case models.DimensionCategory:
				single.Category = filters.Category
			case models.DimensionProduct:
				single.Product = filters.Product
			}
			matched := factIDs(e.Filter(single))
			want = slices.DeleteFunc(want, func(id int) bool {
				_, found := slices.BinarySearch(matched, id)
				return !found
			})
		}

		if diff := cmp.Diff(want, factIDs(e.Filter(filters))); diff != "" {
			t.Errorf("Filter(%+v) is not the intersection (-want +got):\n%s", filters, diff)
		}
	}
}

func kpiValues(k models.KPIs) []float64 {
	return []float64{
		float64(k.TotalOrders), k.TotalRevenue, k.AverageProductPrice, k.AverageDeliveryTime,
		k.AverageCustomerRating, k.PercentLateDeliveries, float64(k.NegativeReviews),
		k.AverageShippingCost, k.AverageProfitRatio, k.AverageWeightProfitRatio, k.AveragePricePerCategory,
	}
}

func TestCompute_NoNaNOrInf(t *testing.T) {
	e := newTestEngine(t, propertyFacts())

	for _, filters := range filterSpace() {
		snap := e.Compute(filters)
		for i, v := range kpiValues(snap.KPIs) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Compute(%+v): KPI field %d = %v", filters, i, v)
			}
		}
		for _, c := range snap.Categories {
			for _, v := range []float64{c.AveragePrice, c.AverageRating, c.AverageDeliveryTime, c.ProfitRatio, c.WeightProfitRatio} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("Compute(%+v): category %q has non-finite value", filters, c.Category)
				}
			}
		}
	}
}

func TestCompute_EmptyStore(t *testing.T) {
	e := newTestEngine(t, nil)
	snap := e.Compute(models.Filters{Region: "X"})

	if !snap.Empty {
		t.Fatal("expected empty snapshot")
	}
	if diff := cmp.Diff(models.KPIs{}, snap.KPIs); diff != "" {
		t.Errorf("KPIs of an empty store should be zero (-want +got):\n%s", diff)
	}
}

func TestCompute_RollupConservation(t *testing.T) {
	e := newTestEngine(t, propertyFacts())
	const eps = 1e-9

	for _, filters := range filterSpace() {
		snap := e.Compute(filters)

		var total float64
		for _, f := range snap.Facts {
			total += f.Revenue
		}
		sums := map[string]float64{}
		for _, c := range snap.Categories {
			sums["category"] += c.Revenue
		}
		for _, r := range snap.Regions {
			sums["region"] += r.Revenue
		}
		for _, m := range snap.Monthly {
			sums["month"] += m.Revenue
		}
		for _, s := range snap.RegionShare {
			sums["region share"] += s.Value
		}
		for _, s := range snap.CategoryShare {
			sums["category share"] += s.Value
		}
		if !snap.Empty {
			sums["kpi"] = snap.KPIs.TotalRevenue
		}

		for name, sum := range sums {
			if math.Abs(sum-total) > eps {
				t.Errorf("Compute(%+v): %s revenue %v != filtered total %v", filters, name, sum, total)
			}
		}
	}
}

func BenchmarkCompute(b *testing.B) {
	var facts []models.Fact
	regions := []string{"SP", "RJ", "MG", "RS", "PR", "SC", "BA", "DF", "GO", "ES"}
	categories := []string{"toys", "books", "garden", "health", "sports"}
	for i := range 20000 {
		facts = append(facts, catalogFact(catalogRow{
			product:  "p" + strconv.Itoa(i%500),
			category: categories[i%len(categories)],
			region:   regions[i%len(regions)],
			price:    float64(10 + i%90), shipping: 3, weight: 1.5,
			rating: i%5 + 1, delivery: float64(i % 20), estimated: 10,
		}))
	}
	e := NewEngine(NewFactStore(facts))
	filters := models.Filters{Region: "SP"}

	for b.Loop() {
		e.Compute(filters)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := config.EngineConfig{BucketMaxGroups: 9, BucketKeep: 4, BucketMinShare: 0.03, OptionScanLimit: 100, TopProducts: 3}
	e := NewEngine(NewFactStore(nil), EngineOptions(cfg)...)

	if want := (BucketOptions{MaxGroups: 9, Keep: 4, MinShare: 0.03}); e.cfg.bucket != want {
		t.Errorf("bucket = %+v, want %+v", e.cfg.bucket, want)
	}
	if e.ScanLimit() != 100 || e.cfg.topProducts != 3 {
		t.Errorf("scan limit %d, top products %d", e.ScanLimit(), e.cfg.topProducts)
	}
}
