package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"commerce-insights/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestFactCache_RoundTripKeepsZeroAttributes(t *testing.T) {
	source := createTempPayload(t, mixedPayload)
	cache := NewFactCache(filepath.Join(t.TempDir(), "cache"))

	facts := []models.Fact{
		catalogFact(catalogRow{product: "free-shipping", category: "toys", region: "SP", price: 10, shipping: 0, weight: 1, rating: 3, delivery: 0, estimated: 0}),
		aggregateFact("books", "RJ", 2017, 25),
	}
	facts[0].ID, facts[1].ID = 1, 2

	if err := cache.Save(source, facts); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok := cache.Load(source)
	if !ok {
		t.Fatal("Load missed a fresh cache entry")
	}
	if diff := cmp.Diff(facts, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFactCache_StaleWhenSourceNewer(t *testing.T) {
	source := createTempPayload(t, mixedPayload)
	cache := NewFactCache(t.TempDir())

	if err := cache.Save(source, scenarioFacts()); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(source, future, future); err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Load(source); ok {
		t.Error("Load returned a cache entry older than its source")
	}
}

func TestFactCache_MissingEntry(t *testing.T) {
	cache := NewFactCache(t.TempDir())
	if _, ok := cache.Load(createTempPayload(t, mixedPayload)); ok {
		t.Error("Load hit on an empty cache")
	}
}
