package services

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"commerce-insights/internal/config"
	"commerce-insights/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultTopProducts    = 5
	defaultMostProfitable = 10
	minProfitableRating   = 4
	negativeRatingCutoff  = 2
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	bucket      BucketOptions
	scanLimit   int
	topProducts int
	now         func() time.Time
}

func WithBucketOptions(opts BucketOptions) Option {
	return func(c *engineConfig) { c.bucket = opts }
}

// WithScanLimit caps option resolution at the first n facts; 0 disables the cap.
func WithScanLimit(n int) Option {
	return func(c *engineConfig) { c.scanLimit = max(n, 0) }
}

func WithTopProducts(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.topProducts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// EngineOptions translates the engine configuration section into options.
func EngineOptions(cfg config.EngineConfig) []Option {
	return []Option{
		WithBucketOptions(BucketOptions{
			MaxGroups: cfg.BucketMaxGroups,
			Keep:      cfg.BucketKeep,
			MinShare:  cfg.BucketMinShare,
		}),
		WithScanLimit(cfg.OptionScanLimit),
		WithTopProducts(cfg.TopProducts),
	}
}

// Engine derives rollups and KPIs from a FactStore for any filter state.
// It holds no filter state itself and is safe for concurrent use.
type Engine struct {
	store  *FactStore
	cfg    engineConfig
	global models.KPIs
}

func NewEngine(store *FactStore, opts ...Option) *Engine {
	cfg := engineConfig{
		bucket:      DefaultBucketOptions(),
		topProducts: defaultTopProducts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if store == nil {
		store = NewFactStore(nil)
	}

	e := &Engine{store: store, cfg: cfg}
	all := e.store.facts
	e.global = deriveKPIs(accumulate(all), models.KPIs{}, rollupCategories(all, models.KPIs{}))
	return e
}

func (e *Engine) Store() *FactStore {
	return e.store
}

func (e *Engine) ScanLimit() int {
	return e.cfg.scanLimit
}

// Global is the unfiltered KPI snapshot every filtered KPI falls back to.
func (e *Engine) Global() models.KPIs {
	return e.global
}

// Filter returns copies of the facts matching every active filter.
func (e *Engine) Filter(filters models.Filters) []models.Fact {
	out := make([]models.Fact, 0)
	for _, f := range e.store.facts {
		if filters.Matches(f) {
			out = append(out, f)
		}
	}
	return out
}

func (e *Engine) Options(filters models.Filters) models.Options {
	return ResolveAllOptions(e.store, filters, e.cfg.scanLimit)
}

// Compute produces the complete snapshot for filters. It never fails: an
// empty selection yields empty rollups and the global KPIs.
func (e *Engine) Compute(filters models.Filters) models.Snapshot {
	facts := e.Filter(filters)

	snap := models.Snapshot{
		Filters:            filters,
		Options:            e.Options(filters),
		Empty:              len(facts) == 0,
		RecordCount:        len(facts),
		Monthly:            []models.MonthlyRollup{},
		Regions:            []models.RegionRollup{},
		Categories:         []models.CategoryRollup{},
		KPIs:               e.global,
		RegionShare:        []models.Slice{},
		CategoryShare:      []models.Slice{},
		RatingDistribution: []models.RatingCount{},
		BestRated:          []models.ProductSummary{},
		WorstRated:         []models.ProductSummary{},
		MostProfitable:     []models.ProductSummary{},
		GeneratedAt:        e.cfg.now(),
		Facts:              facts,
	}
	if snap.Empty {
		return snap
	}

	snap.Monthly = rollupMonths(facts)
	snap.Regions = rollupRegions(facts)
	snap.Categories = rollupCategories(facts, e.global)
	snap.KPIs = deriveKPIs(accumulate(facts), e.global, snap.Categories)
	snap.RegionShare = Bucket(regionSlices(snap.Regions), e.cfg.bucket, "regions")
	snap.CategoryShare = Bucket(categorySlices(snap.Categories), e.cfg.bucket, "categories")
	snap.RatingDistribution = ratingDistribution(facts)
	snap.BestRated, snap.WorstRated = rankByRating(facts, e.cfg.topProducts)
	snap.MostProfitable = mostProfitable(facts, defaultMostProfitable)
	return snap
}

// accumulator gathers every sum and denominator the KPIs need in one pass.
// Each metric counts only the facts carrying a valid value for it.
type accumulator struct {
	facts   int
	orders  int
	revenue float64

	ratingSum float64
	ratingN   int
	negative  int

	deliverySum float64
	deliveryN   int
	late        int
	lateN       int

	shippingSum float64
	shippingN   int

	marginSum       float64
	marginN         int
	weightMarginSum float64
	weightMarginN   int
}

func accumulate(facts []models.Fact) accumulator {
	var a accumulator
	for _, f := range facts {
		a.add(f)
	}
	return a
}

func (a *accumulator) add(f models.Fact) {
	a.facts++
	a.orders += f.Orders
	a.revenue += f.Revenue

	if r, ok := f.ValidRating(); ok {
		a.ratingSum += float64(r)
		a.ratingN++
		if r <= negativeRatingCutoff {
			a.negative++
		}
	}
	if d, ok := f.ValidDelivery(); ok {
		a.deliverySum += d
		a.deliveryN++
	}
	if late, ok := f.Late(); ok {
		a.lateN++
		if late {
			a.late++
		}
	}
	if f.ShippingCost != nil {
		a.shippingSum += *f.ShippingCost
		a.shippingN++
	}
	if m, ok := f.PriceMargin(); ok {
		a.marginSum += m
		a.marginN++
	}
	if m, ok := f.WeightMargin(); ok {
		a.weightMarginSum += m
		a.weightMarginN++
	}
}

// deriveKPIs applies the fallback policy: a KPI whose inputs are empty or
// degenerate takes the value from fallback instead of dividing by zero.
//
//	TotalOrders, TotalRevenue, NegativeReviews  fallback when no facts matched
//	AverageProductPrice                         fallback when orders == 0
//	AverageDeliveryTime                         fallback when no valid delivery
//	AverageCustomerRating                       fallback when no valid rating
//	PercentLateDeliveries                       fallback when no actual+estimate pair
//	AverageShippingCost                         fallback when no shipping cost
//	AverageProfitRatio                          fallback when no positive price
//	AverageWeightProfitRatio                    fallback when no positive weight
//	AveragePricePerCategory                     fallback when no category has orders
func deriveKPIs(a accumulator, fallback models.KPIs, categories []models.CategoryRollup) models.KPIs {
	if a.facts == 0 {
		return fallback
	}

	var perCategorySum float64
	var perCategoryN int
	for _, c := range categories {
		if c.Orders > 0 {
			perCategorySum += c.AveragePrice
			perCategoryN++
		}
	}

	return models.KPIs{
		TotalOrders:              a.orders,
		TotalRevenue:             finite(a.revenue, fallback.TotalRevenue),
		AverageProductPrice:      round(ratio(a.revenue, float64(a.orders), fallback.AverageProductPrice), 2),
		AverageDeliveryTime:      round(ratio(a.deliverySum, float64(a.deliveryN), fallback.AverageDeliveryTime), 2),
		AverageCustomerRating:    round(ratio(a.ratingSum, float64(a.ratingN), fallback.AverageCustomerRating), 2),
		PercentLateDeliveries:    round(percent(a.late, a.lateN, fallback.PercentLateDeliveries), 2),
		NegativeReviews:          a.negative,
		AverageShippingCost:      round(ratio(a.shippingSum, float64(a.shippingN), fallback.AverageShippingCost), 2),
		AverageProfitRatio:       round(ratio(a.marginSum, float64(a.marginN), fallback.AverageProfitRatio), 4),
		AverageWeightProfitRatio: round(ratio(a.weightMarginSum, float64(a.weightMarginN), fallback.AverageWeightProfitRatio), 4),
		AveragePricePerCategory:  round(ratio(perCategorySum, float64(perCategoryN), fallback.AveragePricePerCategory), 2),
	}
}

func rollupMonths(facts []models.Fact) []models.MonthlyRollup {
	groups := make(map[string]*models.MonthlyRollup)
	for _, f := range facts {
		key := f.Month()
		g, ok := groups[key]
		if !ok {
			g = &models.MonthlyRollup{Month: key}
			groups[key] = g
		}
		g.Orders += f.Orders
		g.Revenue += f.Revenue
	}

	result := make([]models.MonthlyRollup, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.MonthlyRollup) int {
		return cmp.Compare(a.Month, b.Month)
	})
	return result
}

func rollupRegions(facts []models.Fact) []models.RegionRollup {
	groups := make(map[string]*models.RegionRollup)
	for _, f := range facts {
		key := strings.ToLower(f.Region)
		g, ok := groups[key]
		if !ok {
			g = &models.RegionRollup{Region: f.Region}
			groups[key] = g
		}
		g.Orders += f.Orders
		g.Revenue += f.Revenue
	}

	result := make([]models.RegionRollup, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.RegionRollup) int {
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Region, b.Region)
	})
	return result
}

// rollupCategories groups by category. Averages with no contributing facts
// fall back to the global rating and delivery time; margins fall back to 0.
func rollupCategories(facts []models.Fact, global models.KPIs) []models.CategoryRollup {
	type group struct {
		name string
		acc  accumulator
	}
	groups := make(map[string]*group)
	var order []string
	for _, f := range facts {
		key := strings.ToLower(f.Category)
		g, ok := groups[key]
		if !ok {
			g = &group{name: f.Category}
			groups[key] = g
			order = append(order, key)
		}
		g.acc.add(f)
	}

	result := make([]models.CategoryRollup, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		a := g.acc
		result = append(result, models.CategoryRollup{
			Category:            g.name,
			Orders:              a.orders,
			Revenue:             a.revenue,
			AveragePrice:        round(ratio(a.revenue, float64(a.orders), 0), 2),
			AverageRating:       round(ratio(a.ratingSum, float64(a.ratingN), global.AverageCustomerRating), 2),
			AverageDeliveryTime: round(ratio(a.deliverySum, float64(a.deliveryN), global.AverageDeliveryTime), 2),
			ProfitRatio:         round(ratio(a.marginSum, float64(a.marginN), 0), 4),
			WeightProfitRatio:   round(ratio(a.weightMarginSum, float64(a.weightMarginN), 0), 4),
		})
	}
	slices.SortStableFunc(result, func(a, b models.CategoryRollup) int {
		return cmp.Compare(b.Revenue, a.Revenue)
	})
	return result
}

func ratingDistribution(facts []models.Fact) []models.RatingCount {
	counts := make([]models.RatingCount, 5)
	for i := range counts {
		counts[i].Rating = i + 1
	}
	for _, f := range facts {
		if r, ok := f.ValidRating(); ok {
			counts[r-1].Count++
		}
	}
	return counts
}

func summarize(f models.Fact) models.ProductSummary {
	s := models.ProductSummary{
		ProductID: f.ProductID,
		Category:  f.Category,
		Region:    f.Region,
		Price:     f.Price,
	}
	if f.ShippingCost != nil {
		s.ShippingCost = *f.ShippingCost
	}
	s.Rating, _ = f.ValidRating()
	s.DeliveryDays, _ = f.ValidDelivery()
	if m, ok := f.WeightMargin(); ok {
		s.WeightMargin = round(m, 2)
	}
	if late, ok := f.Late(); ok {
		s.OnTime = !late
	}
	return s
}

// rankByRating returns the n best and n worst rated catalog products. Ties
// prefer faster delivery for the best list and slower for the worst.
func rankByRating(facts []models.Fact, n int) (best, worst []models.ProductSummary) {
	rated := make([]models.ProductSummary, 0)
	for _, f := range facts {
		if _, ok := f.ValidRating(); ok && f.Source == models.SourceCatalog {
			rated = append(rated, summarize(f))
		}
	}

	best = slices.Clone(rated)
	slices.SortStableFunc(best, func(a, b models.ProductSummary) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(a.DeliveryDays, b.DeliveryDays)
	})

	worst = rated
	slices.SortStableFunc(worst, func(a, b models.ProductSummary) int {
		if c := cmp.Compare(a.Rating, b.Rating); c != 0 {
			return c
		}
		return cmp.Compare(b.DeliveryDays, a.DeliveryDays)
	})

	return best[:min(n, len(best))], worst[:min(n, len(worst))]
}

// mostProfitable lists well-rated products by weight-normalized margin.
func mostProfitable(facts []models.Fact, n int) []models.ProductSummary {
	type candidate struct {
		summary models.ProductSummary
		margin  float64
	}
	candidates := make([]candidate, 0)
	for _, f := range facts {
		r, ok := f.ValidRating()
		if !ok || r < minProfitableRating {
			continue
		}
		m, ok := f.WeightMargin()
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{summary: summarize(f), margin: m})
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.margin, a.margin)
	})

	out := make([]models.ProductSummary, 0, min(n, len(candidates)))
	for _, c := range candidates[:min(n, len(candidates))] {
		out = append(out, c.summary)
	}
	return out
}

func ratio(num, den, fallback float64) float64 {
	if den == 0 {
		return finite(fallback, 0)
	}
	return finite(num/den, fallback)
}

func percent(part, whole int, fallback float64) float64 {
	if whole == 0 {
		return finite(fallback, 0)
	}
	return finite(float64(part)*100/float64(whole), fallback)
}

func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if math.IsNaN(fallback) || math.IsInf(fallback, 0) {
			return 0
		}
		return fallback
	}
	return v
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
