package models

import "time"

type FactSource string

const (
	// SourceAggregate rows carry order/revenue totals keyed by month, region and category.
	SourceAggregate FactSource = "aggregate"
	// SourceCatalog rows carry per-product profitability and satisfaction attributes.
	SourceCatalog FactSource = "catalog"
)

// Fact is one normalized product-in-order observation. Facts are immutable once
// loaded; optional attributes are nil when the source did not carry them.
type Fact struct {
	ID            int
	ProductID     string
	Source        FactSource
	Category      string
	Region        string
	OrderDate     time.Time
	Orders        int
	Revenue       float64
	Price         float64
	ShippingCost  *float64
	Weight        *float64
	Rating        *int
	DeliveryDays  *float64
	EstimatedDays *float64
}

func (f Fact) Year() int {
	return f.OrderDate.Year()
}

func (f Fact) Month() string {
	return f.OrderDate.Format("2006-01")
}

// ValidRating reports the 1-5 rating when the fact carries one.
func (f Fact) ValidRating() (int, bool) {
	if f.Rating == nil || *f.Rating < 1 || *f.Rating > 5 {
		return 0, false
	}
	return *f.Rating, true
}

func (f Fact) ValidDelivery() (float64, bool) {
	if f.DeliveryDays == nil || *f.DeliveryDays < 0 {
		return 0, false
	}
	return *f.DeliveryDays, true
}

// Late reports whether actual delivery exceeded the estimate. ok is false when
// either value is missing.
func (f Fact) Late() (late bool, ok bool) {
	actual, okActual := f.ValidDelivery()
	if !okActual || f.EstimatedDays == nil || *f.EstimatedDays < 0 {
		return false, false
	}
	return actual > *f.EstimatedDays, true
}

// PriceMargin is (price - shipping) / price, defined only for priced catalog facts.
func (f Fact) PriceMargin() (float64, bool) {
	if f.ShippingCost == nil || f.Price <= 0 {
		return 0, false
	}
	return (f.Price - *f.ShippingCost) / f.Price, true
}

// WeightMargin is (price - shipping) / weight; zero or missing weight is invalid.
func (f Fact) WeightMargin() (float64, bool) {
	if f.ShippingCost == nil || f.Weight == nil || *f.Weight <= 0 {
		return 0, false
	}
	return (f.Price - *f.ShippingCost) / *f.Weight, true
}

// ProductSummary is the per-product row used by the best/worst rated and
// profitability listings.
type ProductSummary struct {
	ProductID    string  `json:"product_id"`
	Category     string  `json:"category"`
	Region       string  `json:"region"`
	Price        float64 `json:"price"`
	ShippingCost float64 `json:"shipping_cost"`
	Rating       int     `json:"rating"`
	DeliveryDays float64 `json:"delivery_days"`
	WeightMargin float64 `json:"weight_margin"`
	OnTime       bool    `json:"on_time"`
}
