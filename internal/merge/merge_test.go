package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drstein77/chainprices/internal/models"
)

func record(barcode, name, chain string, price float64) models.ProductPrice {
	return models.ProductPrice{
		Barcode:   barcode,
		Name:      name,
		Price:     price,
		ChainID:   chain,
		ChainName: chain + "-name",
		Category:  "cat-" + name,
	}
}

func TestMergeFirstSeenWins(t *testing.T) {
	c := MergeRecords([]models.ProductPrice{
		record("111", "Milk", "A", 5.0),
		record("111", "Milk2", "B", 4.5),
	})

	require.Equal(t, 1, c.Len())
	p, ok := c.Get("111")
	require.True(t, ok)
	assert.Equal(t, "Milk", p.Name)
	assert.Equal(t, "cat-Milk", p.Category)
	assert.Equal(t, []models.ChainPrice{
		{Chain: "A", ChainName: "A-name", Price: 5.0},
		{Chain: "B", ChainName: "B-name", Price: 4.5},
	}, p.Prices)
}

func TestMergeDropsLaterSameChainObservation(t *testing.T) {
	c := MergeRecords([]models.ProductPrice{
		record("1", "x", "A", 3),
		record("1", "x", "A", 2),
		record("1", "x", "B", 9),
		record("1", "x", "A", 1),
	})

	p, _ := c.Get("1")
	require.Len(t, p.Prices, 2)
	assert.Equal(t, 3.0, p.Prices[0].Price)
	assert.Equal(t, "B", p.Prices[1].Chain)
}

func TestMergeAtMostOnePricePerChain(t *testing.T) {
	var records []models.ProductPrice
	chains := []string{"A", "B", "C"}
	for i := 0; i < 60; i++ {
		barcode := []string{"1", "2", "3", "4"}[i%4]
		records = append(records, record(barcode, "n", chains[i%3], float64(i+1)))
	}

	for _, p := range MergeRecords(records).Products() {
		seen := map[string]bool{}
		for _, price := range p.Prices {
			assert.False(t, seen[price.Chain], "duplicate chain %s for %s", price.Chain, p.Barcode)
			seen[price.Chain] = true
		}
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	records := []models.ProductPrice{
		record("3", "c", "A", 1),
		record("1", "a", "A", 2),
		record("2", "b", "B", 3),
		record("1", "a2", "B", 4),
	}

	first := MergeRecords(records).Products()
	second := MergeRecords(records).Products()
	assert.Equal(t, first, second)

	var order []string
	for _, p := range first {
		order = append(order, p.Barcode)
	}
	assert.Equal(t, []string{"3", "1", "2"}, order)
}

func TestMergeSkipsFailedChains(t *testing.T) {
	c := Merge([]models.ChainResult{
		{ChainID: "A", Products: []models.ProductPrice{record("1", "x", "A", 1)}},
		{ChainID: "B", Err: errors.New("boom"), Products: []models.ProductPrice{record("2", "y", "B", 1)}},
		{ChainID: "C", Products: []models.ProductPrice{record("1", "z", "C", 2)}},
	})

	require.Equal(t, 1, c.Len())
	p, _ := c.Get("1")
	assert.Len(t, p.Prices, 2)
}

func TestProductsAreCopies(t *testing.T) {
	c := MergeRecords([]models.ProductPrice{record("1", "x", "A", 1)})
	products := c.Products()
	products[0].Prices[0].Price = 99
	products[0].Name = "changed"

	p, _ := c.Get("1")
	assert.Equal(t, 1.0, p.Prices[0].Price)
	assert.Equal(t, "x", p.Name)
}

func TestEmptyCategoryFallsBackToDefault(t *testing.T) {
	r := record("1", "x", "A", 1)
	r.Category = ""
	p, _ := MergeRecords([]models.ProductPrice{r}).Get("1")
	assert.Equal(t, models.DefaultCategory, p.Category)
}
