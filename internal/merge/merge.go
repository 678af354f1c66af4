// Package merge folds per-chain price records into one catalog keyed by
// barcode.
package merge

import "github.com/drstein77/chainprices/internal/models"

// Catalog is the barcode-keyed merge result. Products keep the order in
// which their barcode was first seen.
type Catalog struct {
	order []string
	items map[string]*models.MergedProduct
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]*models.MergedProduct)}
}

// Add merges one record. The first record of a barcode seeds its name,
// manufacturer, category and unit fields; later records only contribute a
// price, and only when their chain has no price yet.
func (c *Catalog) Add(p models.ProductPrice) {
	item, ok := c.items[p.Barcode]
	if !ok {
		item = &models.MergedProduct{
			Barcode:      p.Barcode,
			Name:         p.Name,
			Manufacturer: p.Manufacturer,
			Category:     p.Category,
			UnitQty:      p.UnitQty,
			UnitMeasure:  p.UnitMeasure,
			Prices:       []models.ChainPrice{},
		}
		if item.Category == "" {
			item.Category = models.DefaultCategory
		}
		c.items[p.Barcode] = item
		c.order = append(c.order, p.Barcode)
	}

	for _, existing := range item.Prices {
		if existing.Chain == p.ChainID {
			return
		}
	}
	item.Prices = append(item.Prices, models.ChainPrice{
		Chain:     p.ChainID,
		ChainName: p.ChainName,
		Price:     p.Price,
	})
}

// Len returns the number of unique barcodes.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Get returns a copy of the merged product for barcode.
func (c *Catalog) Get(barcode string) (models.MergedProduct, bool) {
	item, ok := c.items[barcode]
	if !ok {
		return models.MergedProduct{}, false
	}
	return clone(item), true
}

// Products returns copies of all merged products in first-seen order.
func (c *Catalog) Products() []models.MergedProduct {
	out := make([]models.MergedProduct, 0, len(c.order))
	for _, barcode := range c.order {
		out = append(out, clone(c.items[barcode]))
	}
	return out
}

func clone(item *models.MergedProduct) models.MergedProduct {
	cp := *item
	cp.Prices = append([]models.ChainPrice{}, item.Prices...)
	return cp
}

// MergeRecords folds records in the given order.
func MergeRecords(records []models.ProductPrice) *Catalog {
	c := NewCatalog()
	for _, p := range records {
		c.Add(p)
	}
	return c
}

// Merge folds the products of every chain result, in slice order. Failed
// chains contribute nothing.
func Merge(results []models.ChainResult) *Catalog {
	c := NewCatalog()
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, p := range res.Products {
			c.Add(p)
		}
	}
	return c
}
