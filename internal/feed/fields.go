package feed

import "strings"

// Alias lists per logical attribute, in priority order. Chains publish the
// same attribute under different tag or column names.
var (
	BarcodeFields      = []string{"ItemCode", "Barcode", "barcode", "item_code"}
	NameFields         = []string{"ItemName", "ItemNm", "ProductName", "name", "item_name", "product_name"}
	PriceFields        = []string{"ItemPrice", "Price", "price", "item_price"}
	ManufacturerFields = []string{"ManufacturerName", "Manufacturer", "manufacturer_name"}
	UnitQtyFields      = []string{"UnitQty", "unit_qty", "Quantity"}
	UnitMeasureFields  = []string{"UnitOfMeasure", "UOM", "unit_of_measure"}
)

// RawFieldSet holds the named values of one feed item: the child elements and
// attributes of an XML item or the cells of a CSV row.
type RawFieldSet struct {
	values map[string]string
}

// NewRawFieldSet returns an empty field set.
func NewRawFieldSet() *RawFieldSet {
	return &RawFieldSet{values: make(map[string]string)}
}

// FieldsFromMap builds a field set from a plain map.
func FieldsFromMap(m map[string]string) *RawFieldSet {
	rec := NewRawFieldSet()
	for k, v := range m {
		rec.values[k] = v
	}
	return rec
}

// Add stores value under name unless the name is already present.
func (r *RawFieldSet) Add(name, value string) {
	if _, ok := r.values[name]; ok {
		return
	}
	r.values[name] = value
}

// Lookup returns the raw value stored under name.
func (r *RawFieldSet) Lookup(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[name]
	return v, ok
}

// Len returns the number of named values.
func (r *RawFieldSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.values)
}

// Extract returns the first alias whose value is non-blank, trimmed.
func Extract(rec *RawFieldSet, aliases []string) (string, bool) {
	for _, name := range aliases {
		v, ok := rec.Lookup(name)
		if !ok {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}
