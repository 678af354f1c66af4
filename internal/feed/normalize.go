package feed

import (
	"math"
	"strconv"
	"strings"

	"github.com/drstein77/chainprices/internal/models"
)

// Normalizer turns raw feed items into canonical price records.
type Normalizer struct {
	categorizer *Categorizer
}

// NewNormalizer returns a normalizer categorizing with c, or with the default
// table when c is nil.
func NewNormalizer(c *Categorizer) *Normalizer {
	if c == nil {
		c = DefaultCategorizer()
	}
	return &Normalizer{categorizer: c}
}

// Normalize builds a ProductPrice from rec. The second result is false when
// the item lacks a barcode, a name or a positive price.
func (n *Normalizer) Normalize(rec *RawFieldSet, chainID, chainName string) (models.ProductPrice, bool) {
	barcode, _ := Extract(rec, BarcodeFields)
	name, _ := Extract(rec, NameFields)
	priceText, _ := Extract(rec, PriceFields)

	if barcode == "" || name == "" {
		return models.ProductPrice{}, false
	}
	price, ok := ParsePrice(priceText)
	if !ok || price <= 0 {
		return models.ProductPrice{}, false
	}

	manufacturer, _ := Extract(rec, ManufacturerFields)
	unitQty, _ := Extract(rec, UnitQtyFields)
	unitMeasure, _ := Extract(rec, UnitMeasureFields)

	return models.ProductPrice{
		Barcode:      barcode,
		Name:         name,
		Price:        roundPrice(price),
		ChainID:      chainID,
		ChainName:    chainName,
		Manufacturer: manufacturer,
		UnitQty:      unitQty,
		UnitMeasure:  unitMeasure,
		Category:     n.categorizer.Categorize(name),
	}, true
}

// ParsePrice parses a decimal that may use a comma as separator.
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}
