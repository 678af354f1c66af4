package result

import (
	"fmt"
	"time"

	"github.com/drstein77/chainprices/internal/models"
)

const imageURLTemplate = "https://images.openfoodfacts.org/images/products/%s/%s/%s/%s/front_he.400.jpg"

// ImageURL derives the product image location from a barcode of at least 12
// characters, split 3/3/3/rest.
func ImageURL(barcode string) (string, bool) {
	if len(barcode) < 12 {
		return "", false
	}
	return fmt.Sprintf(imageURLTemplate, barcode[:3], barcode[3:6], barcode[6:9], barcode[9:]), true
}

// Cheapest returns the lowest price and its chain display name. Ties go to
// the earlier entry; an empty list yields 0 and "".
func Cheapest(prices []models.ChainPrice) (float64, string) {
	if len(prices) == 0 {
		return 0, ""
	}
	best := prices[0]
	for _, p := range prices[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return best.Price, best.ChainName
}

// Project turns a merged product into its persisted form.
func Project(p models.MergedProduct, now time.Time, dataSource string) models.StoredProduct {
	now = now.UTC()
	stored := models.StoredProduct{
		Barcode:      p.Barcode,
		Name:         p.Name,
		Manufacturer: p.Manufacturer,
		Category:     p.Category,
		UnitQty:      p.UnitQty,
		UnitMeasure:  p.UnitMeasure,
		Prices:       make([]models.StoredPrice, 0, len(p.Prices)),
		LastUpdated:  now,
		DataSource:   dataSource,
	}
	if url, ok := ImageURL(p.Barcode); ok {
		stored.Image = &url
	}
	for _, price := range p.Prices {
		stored.Prices = append(stored.Prices, models.StoredPrice{
			Chain:       price.Chain,
			ChainName:   price.ChainName,
			Price:       price.Price,
			LastUpdated: now,
		})
	}
	stored.CheapestPrice, stored.CheapestChain = Cheapest(p.Prices)
	return stored
}

// SyncStatus builds the run record written next to the products.
func SyncStatus(runID string, summary models.FetchSummary, totalProducts int, stats models.StoreStats, now time.Time, mode string) models.SyncStatus {
	chains := make(map[string]models.ChainStatus, len(summary.Chains))
	for id, n := range summary.Chains {
		chains[id] = models.ChainStatus{Products: n, Error: summary.Failed[id]}
	}
	return models.SyncStatus{
		RunID:         runID,
		LastSync:      now.UTC(),
		Type:          mode,
		TotalProducts: totalProducts,
		StoreStats:    stats,
		Chains:        chains,
	}
}
