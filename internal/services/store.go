package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"commerce-insights/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize  = 10000
	maxWorkers = 10

	unknownValue = "unknown"
	// defaultYear dates catalog products when neither the payload meta nor the
	// aggregate rows name any year.
	defaultYear = 2018
)

// ErrLoad marks every failure to build the fact store from its source.
var ErrLoad = errors.New("fact store load failed")

// Payload is the parsed source document: aggregate order/revenue rows plus a
// parallel catalog of per-product attributes.
type Payload struct {
	Facts         []AggregateRow `json:"facts"`
	Profitability struct {
		Products []CatalogRow `json:"products"`
	} `json:"profitability"`
	Overview struct {
		Meta Meta `json:"meta"`
	} `json:"overview"`
	CategoryTranslation map[string]string `json:"category_translation"`
}

type AggregateRow struct {
	Year      int      `json:"year"`
	YM        string   `json:"ym"`
	State     string   `json:"state"`
	Category  string   `json:"category"`
	Orders    *int     `json:"orders"`
	Revenue   *float64 `json:"revenue"`
	Price     *float64 `json:"price"`
	ProductID string   `json:"product_id"`
}

type CatalogRow struct {
	ProductID             string   `json:"product_id"`
	Category              string   `json:"product_category_name_english"`
	Price                 *float64 `json:"price"`
	ShippingCost          *float64 `json:"shippingCost"`
	Weight                *float64 `json:"weight"`
	Rating                *float64 `json:"rating"`
	DeliveryTime          *float64 `json:"deliveryTime"`
	EstimatedDeliveryTime *float64 `json:"estimatedDeliveryTime"`
	State                 string   `json:"state"`
	OrderDate             string   `json:"order_date"`
}

type Meta struct {
	Years  []int    `json:"years"`
	Months []string `json:"months"`
	States []string `json:"states"`
}

// FactStore is the immutable in-memory collection every aggregation reads from.
// It is safe for concurrent readers.
type FactStore struct {
	facts    []models.Fact
	loadedAt time.Time
}

// NewFactStore copies facts into a store, numbering any fact without an ID.
func NewFactStore(facts []models.Fact) *FactStore {
	owned := make([]models.Fact, len(facts))
	copy(owned, facts)
	next := 1
	for _, f := range owned {
		next = max(next, f.ID+1)
	}
	for i := range owned {
		if owned[i].ID == 0 {
			owned[i].ID = next
			next++
		}
	}
	return &FactStore{facts: owned, loadedAt: time.Now()}
}

func (s *FactStore) Len() int {
	return len(s.facts)
}

// Facts returns a copy of every stored fact.
func (s *FactStore) Facts() []models.Fact {
	return slices.Clone(s.facts)
}

func (s *FactStore) LoadedAt() time.Time {
	return s.loadedAt
}

// DecodePayload parses a source document. Any structural error is an ErrLoad.
func DecodePayload(r io.Reader) (*Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrLoad, err)
	}
	if len(p.Facts) == 0 && len(p.Profitability.Products) == 0 {
		return nil, fmt.Errorf("%w: payload has neither facts nor products", ErrLoad)
	}
	return &p, nil
}

// LoadPayload decodes and normalizes a source document in one step.
func LoadPayload(ctx context.Context, r io.Reader) ([]models.Fact, int, error) {
	p, err := DecodePayload(r)
	if err != nil {
		return nil, 0, err
	}
	return Normalize(ctx, p)
}

type normalized struct {
	fact  models.Fact
	valid bool
}

// Normalize turns a payload into facts. Rows that cannot be dated are skipped;
// a payload that yields no facts at all is a load error.
func Normalize(ctx context.Context, p *Payload) ([]models.Fact, int, error) {
	translate := translator(p.CategoryTranslation)
	hasAggregates := len(p.Facts) > 0

	aggregates := make([]normalized, len(p.Facts))
	if err := runBatches(ctx, len(p.Facts), func(i int) {
		f, ok := normalizeAggregate(p.Facts[i], translate)
		aggregates[i] = normalized{fact: f, valid: ok}
	}); err != nil {
		return nil, 0, err
	}

	deriver := newCatalogDeriver(p.Overview.Meta, aggregates)
	catalog := make([]normalized, len(p.Profitability.Products))
	if err := runBatches(ctx, len(p.Profitability.Products), func(i int) {
		f := normalizeCatalog(p.Profitability.Products[i], i, deriver, translate, hasAggregates)
		catalog[i] = normalized{fact: f, valid: true}
	}); err != nil {
		return nil, 0, err
	}

	facts := make([]models.Fact, 0, len(aggregates)+len(catalog))
	skipped := 0
	for _, n := range slices.Concat(aggregates, catalog) {
		if !n.valid {
			skipped++
			continue
		}
		n.fact.ID = len(facts) + 1
		if n.fact.Source == models.SourceCatalog && n.fact.ProductID == "" {
			n.fact.ProductID = strconv.Itoa(n.fact.ID)
		}
		facts = append(facts, n.fact)
	}

	if len(facts) == 0 {
		return nil, skipped, fmt.Errorf("%w: no valid records found", ErrLoad)
	}
	return facts, skipped, nil
}

// runBatches applies fn to every index in parallel batches, each batch owning
// a disjoint index range.
func runBatches(ctx context.Context, n int, fn func(i int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: normalize: %v", ErrLoad, err)
	}
	return nil
}

func normalizeAggregate(row AggregateRow, translate func(string) string) (models.Fact, bool) {
	date, ok := aggregateDate(row)
	if !ok {
		return models.Fact{}, false
	}

	orders := 1
	if row.Orders != nil {
		orders = max(*row.Orders, 0)
	}

	var revenue float64
	switch {
	case row.Revenue != nil:
		revenue = nonNegative(*row.Revenue)
	case row.Price != nil:
		revenue = nonNegative(*row.Price) * float64(orders)
	}

	price := 0.0
	if orders > 0 {
		price = revenue / float64(orders)
	} else if row.Price != nil {
		price = nonNegative(*row.Price)
	}

	return models.Fact{
		ProductID: strings.TrimSpace(row.ProductID),
		Source:    models.SourceAggregate,
		Category:  translate(row.Category),
		Region:    cleanRegion(row.State),
		OrderDate: date,
		Orders:    orders,
		Revenue:   revenue,
		Price:     price,
	}, true
}

func aggregateDate(row AggregateRow) (time.Time, bool) {
	if ym := strings.TrimSpace(row.YM); ym != "" {
		if t, err := time.Parse("2006-01", ym); err == nil {
			return t, true
		}
	}
	if row.Year > 0 {
		return time.Date(row.Year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func normalizeCatalog(row CatalogRow, idx int, d *catalogDeriver, translate func(string) string, hasAggregates bool) models.Fact {
	price := 0.0
	if row.Price != nil {
		price = nonNegative(*row.Price)
	}

	f := models.Fact{
		ProductID:     strings.TrimSpace(row.ProductID),
		Source:        models.SourceCatalog,
		Category:      translate(row.Category),
		Region:        cleanRegion(row.State),
		Price:         price,
		ShippingCost:  nonNegativePtr(row.ShippingCost),
		Weight:        nonNegativePtr(row.Weight),
		Rating:        ratingPtr(row.Rating),
		DeliveryDays:  nonNegativePtr(row.DeliveryTime),
		EstimatedDays: nonNegativePtr(row.EstimatedDeliveryTime),
	}
	if strings.TrimSpace(row.State) == "" {
		f.Region = d.region(idx)
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(row.OrderDate)); err == nil {
		f.OrderDate = t
	} else {
		f.OrderDate = d.date(idx)
	}

	// Aggregate rows already account for orders and revenue.
	if !hasAggregates {
		f.Orders = 1
		f.Revenue = price
	}
	return f
}

// catalogDeriver fills in region and order date for catalog rows that lack
// them, cycling through the known regions, years and months.
type catalogDeriver struct {
	regions []string
	years   []int
	months  []time.Month
}

func newCatalogDeriver(meta Meta, aggregates []normalized) *catalogDeriver {
	d := &catalogDeriver{}

	for _, s := range meta.States {
		if s = cleanRegion(s); s != unknownValue {
			d.regions = append(d.regions, s)
		}
	}
	d.years = slices.Clone(meta.Years)
	for _, m := range meta.Months {
		if n, err := strconv.Atoi(strings.TrimSpace(m)); err == nil && n >= 1 && n <= 12 {
			d.months = append(d.months, time.Month(n))
		}
	}

	if len(d.regions) == 0 || len(d.years) == 0 {
		seenRegion := make(map[string]bool)
		seenYear := make(map[int]bool)
		var regions []string
		var years []int
		for _, a := range aggregates {
			if !a.valid {
				continue
			}
			if key := strings.ToLower(a.fact.Region); !seenRegion[key] {
				seenRegion[key] = true
				regions = append(regions, a.fact.Region)
			}
			if y := a.fact.Year(); !seenYear[y] {
				seenYear[y] = true
				years = append(years, y)
			}
		}
		slices.Sort(years)
		if len(d.regions) == 0 {
			d.regions = regions
		}
		if len(d.years) == 0 {
			d.years = years
		}
	}
	return d
}

func (d *catalogDeriver) region(idx int) string {
	if len(d.regions) == 0 {
		return unknownValue
	}
	return d.regions[idx%len(d.regions)]
}

func (d *catalogDeriver) date(idx int) time.Time {
	year := defaultYear
	if len(d.years) > 0 {
		year = d.years[idx%len(d.years)]
	}
	month := time.January
	if len(d.months) > 0 {
		month = d.months[idx%len(d.months)]
	}
	return time.Date(year, month, idx%28+1, 0, 0, 0, 0, time.UTC)
}

func translator(table map[string]string) func(string) string {
	lookup := make(map[string]string, len(table))
	for raw, english := range table {
		lookup[strings.ToLower(strings.TrimSpace(raw))] = strings.TrimSpace(english)
	}
	return func(category string) string {
		category = strings.TrimSpace(category)
		if english, ok := lookup[strings.ToLower(category)]; ok && english != "" {
			return english
		}
		if category == "" {
			return unknownValue
		}
		return category
	}
}

func cleanRegion(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return unknownValue
	}
	return s
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNegativePtr(v *float64) *float64 {
	if v == nil || *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

func ratingPtr(v *float64) *int {
	if v == nil || math.IsNaN(*v) {
		return nil
	}
	r := int(math.Round(*v))
	if r < 1 || r > 5 {
		return nil
	}
	return &r
}
