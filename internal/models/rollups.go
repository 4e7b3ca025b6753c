package models

import "time"

type MonthlyRollup struct {
	Month   string  `json:"month"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type RegionRollup struct {
	Region  string  `json:"region"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// CategoryRollup carries both margin definitions under distinct names:
// ProfitRatio is price-based, WeightProfitRatio is weight-normalized.
type CategoryRollup struct {
	Category            string  `json:"category"`
	Orders              int     `json:"orders"`
	Revenue             float64 `json:"revenue"`
	AveragePrice        float64 `json:"average_price"`
	AverageRating       float64 `json:"average_rating"`
	AverageDeliveryTime float64 `json:"average_delivery_time"`
	ProfitRatio         float64 `json:"profit_ratio"`
	WeightProfitRatio   float64 `json:"weight_profit_ratio"`
}

type KPIs struct {
	TotalOrders              int     `json:"total_orders"`
	TotalRevenue             float64 `json:"total_revenue"`
	AverageProductPrice      float64 `json:"average_product_price"`
	AverageDeliveryTime      float64 `json:"average_delivery_time"`
	AverageCustomerRating    float64 `json:"average_customer_rating"`
	PercentLateDeliveries    float64 `json:"percent_late_deliveries"`
	NegativeReviews          int     `json:"negative_reviews"`
	AverageShippingCost      float64 `json:"average_shipping_cost"`
	AverageProfitRatio       float64 `json:"average_profit_ratio"`
	AverageWeightProfitRatio float64 `json:"average_weight_profit_ratio"`
	AveragePricePerCategory  float64 `json:"average_price_per_category"`
}

// Slice is one entry of a proportional view. Groups is greater than one only
// for the synthetic "Others" entry.
type Slice struct {
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	Groups int     `json:"groups"`
	Others bool    `json:"others,omitempty"`
}

type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// Options holds the reachable values of every dimension given the other filters.
type Options struct {
	Years      []string `json:"years"`
	Regions    []string `json:"regions"`
	Categories []string `json:"categories"`
	Products   []string `json:"products"`
}

func (o Options) For(d Dimension) []string {
	switch d {
	case DimensionYear:
		return o.Years
	case DimensionRegion:
		return o.Regions
	case DimensionCategory:
		return o.Categories
	case DimensionProduct:
		return o.Products
	}
	return nil
}

// Snapshot is the fully computed, read-only view handed to presentation adapters.
type Snapshot struct {
	Filters            Filters          `json:"filters"`
	Options            Options          `json:"options"`
	Empty              bool             `json:"empty"`
	RecordCount        int              `json:"record_count"`
	Monthly            []MonthlyRollup  `json:"monthly"`
	Regions            []RegionRollup   `json:"regions"`
	Categories         []CategoryRollup `json:"categories"`
	KPIs               KPIs             `json:"kpis"`
	RegionShare        []Slice          `json:"region_share"`
	CategoryShare      []Slice          `json:"category_share"`
	RatingDistribution []RatingCount    `json:"rating_distribution"`
	BestRated          []ProductSummary `json:"best_rated"`
	WorstRated         []ProductSummary `json:"worst_rated"`
	MostProfitable     []ProductSummary `json:"most_profitable"`
	GeneratedAt        time.Time        `json:"generated_at"`

	// Facts is the filtered subset, kept out of the wire format.
	Facts []Fact `json:"-"`
}
