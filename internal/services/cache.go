package services

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"commerce-insights/internal/models"
)

const cacheVersion = "v2"

// cachedFacts is the on-disk form of a normalized payload.
type cachedFacts struct {
	Source       string
	LastModified time.Time
	Facts        []cachedFact
}

// cachedFact flattens the optional attributes: gob drops zero values, so a
// pointer to 0 would come back nil without the explicit presence bits.
type cachedFact struct {
	ID        int
	ProductID string
	Source    models.FactSource
	Category  string
	Region    string
	OrderDate time.Time
	Orders    int
	Revenue   float64
	Price     float64
	Present   uint8
	Optional  [5]float64
}

const (
	hasShipping = 1 << iota
	hasWeight
	hasRating
	hasDelivery
	hasEstimate
)

func toCached(f models.Fact) cachedFact {
	c := cachedFact{
		ID:        f.ID,
		ProductID: f.ProductID,
		Source:    f.Source,
		Category:  f.Category,
		Region:    f.Region,
		OrderDate: f.OrderDate,
		Orders:    f.Orders,
		Revenue:   f.Revenue,
		Price:     f.Price,
	}
	set := func(bit uint8, slot int, v *float64) {
		if v != nil {
			c.Present |= bit
			c.Optional[slot] = *v
		}
	}
	set(hasShipping, 0, f.ShippingCost)
	set(hasWeight, 1, f.Weight)
	if f.Rating != nil {
		c.Present |= hasRating
		c.Optional[2] = float64(*f.Rating)
	}
	set(hasDelivery, 3, f.DeliveryDays)
	set(hasEstimate, 4, f.EstimatedDays)
	return c
}

func (c cachedFact) fact() models.Fact {
	f := models.Fact{
		ID:        c.ID,
		ProductID: c.ProductID,
		Source:    c.Source,
		Category:  c.Category,
		Region:    c.Region,
		OrderDate: c.OrderDate,
		Orders:    c.Orders,
		Revenue:   c.Revenue,
		Price:     c.Price,
	}
	get := func(bit uint8, slot int) *float64 {
		if c.Present&bit == 0 {
			return nil
		}
		v := c.Optional[slot]
		return &v
	}
	f.ShippingCost = get(hasShipping, 0)
	f.Weight = get(hasWeight, 1)
	if c.Present&hasRating != 0 {
		r := int(c.Optional[2])
		f.Rating = &r
	}
	f.DeliveryDays = get(hasDelivery, 3)
	f.EstimatedDays = get(hasEstimate, 4)
	return f
}

// FactCache persists normalized facts next to the source so restarts skip
// decoding and normalization while the source file is unchanged.
type FactCache struct {
	dir string
}

func NewFactCache(dir string) *FactCache {
	return &FactCache{dir: dir}
}

func (c *FactCache) filename(source string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(source)
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

// Load returns the cached facts for source when the cache is newer than the
// source's modification time.
func (c *FactCache) Load(source string) ([]models.Fact, bool) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, false
	}

	file, err := os.Open(c.filename(source))
	if err != nil {
		return nil, false
	}
	defer file.Close()

	var cached cachedFacts
	if err := gob.NewDecoder(file).Decode(&cached); err != nil {
		return nil, false
	}
	if cached.Source != source || len(cached.Facts) == 0 || !info.ModTime().Before(cached.LastModified) {
		return nil, false
	}
	facts := make([]models.Fact, 0, len(cached.Facts))
	for _, c := range cached.Facts {
		facts = append(facts, c.fact())
	}
	return facts, true
}

func (c *FactCache) Save(source string, facts []models.Fact) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filename(source))
	if err != nil {
		return err
	}
	defer file.Close()

	out := cachedFacts{
		Source:       source,
		LastModified: time.Now(),
		Facts:        make([]cachedFact, 0, len(facts)),
	}
	for _, f := range facts {
		out.Facts = append(out.Facts, toCached(f))
	}
	return gob.NewEncoder(file).Encode(out)
}
