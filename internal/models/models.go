package models

import "time"

// DefaultCategory is assigned when no keyword of the category table matches.
const DefaultCategory = "כללי"

// ProductPrice is one chain's observation of a product, built from a single feed item.
type ProductPrice struct {
	Barcode      string
	Name         string
	Price        float64
	ChainID      string
	ChainName    string
	Manufacturer string
	UnitQty      string
	UnitMeasure  string
	Category     string
}

// ChainPrice is a single chain's price inside a merged product.
type ChainPrice struct {
	Chain     string  `json:"chain"`
	ChainName string  `json:"chainName"`
	Price     float64 `json:"price"`
}

// MergedProduct combines the observations of one barcode across chains.
type MergedProduct struct {
	Barcode      string       `json:"barcode"`
	Name         string       `json:"name"`
	Manufacturer string       `json:"manufacturer"`
	Category     string       `json:"category"`
	UnitQty      string       `json:"unitQty"`
	UnitMeasure  string       `json:"unitMeasure"`
	Prices       []ChainPrice `json:"prices"`
}

// ChainResult is what one chain contributed to a batch. A non-nil Err marks
// the chain as failed; Products is empty in that case.
type ChainResult struct {
	ChainID   string
	ChainName string
	Products  []ProductPrice
	Files     int
	Err       error
}

// FetchSummary describes a batch run per chain.
type FetchSummary struct {
	Order   []string
	Chains  map[string]int
	Failed  map[string]string
	Success bool
}

// Result is the batch output written to stdout or the output file.
type Result struct {
	Success       bool            `json:"success"`
	TotalProducts int             `json:"totalProducts"`
	ChainsSummary map[string]int  `json:"chainsSummary"`
	Products      []MergedProduct `json:"products"`
	FetchedAt     string          `json:"fetchedAt"`
}

// StoredPrice is a chain price as written to the document store.
type StoredPrice struct {
	Chain       string    `json:"chain" bson:"chain"`
	ChainName   string    `json:"chainName" bson:"chainName"`
	Price       float64   `json:"price" bson:"price"`
	LastUpdated time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

// StoredProduct is the persistence projection of a merged product.
type StoredProduct struct {
	Barcode       string        `json:"barcode" bson:"barcode"`
	Name          string        `json:"name" bson:"name"`
	Manufacturer  string        `json:"manufacturer" bson:"manufacturer"`
	Category      string        `json:"category" bson:"category"`
	UnitQty       string        `json:"unitQty" bson:"unitQty"`
	UnitMeasure   string        `json:"unitMeasure" bson:"unitMeasure"`
	Image         *string       `json:"image" bson:"image"`
	Prices        []StoredPrice `json:"prices" bson:"prices"`
	CheapestPrice float64       `json:"cheapestPrice" bson:"cheapestPrice"`
	CheapestChain string        `json:"cheapestChain" bson:"cheapestChain"`
	LastUpdated   time.Time     `json:"lastUpdated" bson:"lastUpdated"`
	DataSource    string        `json:"dataSource" bson:"dataSource"`
}

// StoreStats counts persistence outcomes.
type StoreStats struct {
	Inserted int `json:"inserted" bson:"inserted"`
	Updated  int `json:"updated" bson:"updated"`
	Errors   int `json:"errors" bson:"errors"`
}

// ChainStatus is the per-chain part of the sync status record.
type ChainStatus struct {
	Products int    `json:"products" bson:"products"`
	Error    string `json:"error,omitempty" bson:"error,omitempty"`
}

// SyncStatusKey is the fixed key the sync status record is upserted by.
const SyncStatusKey = "sync-status"

// SyncStatus records the outcome of the last persisted run.
type SyncStatus struct {
	RunID         string                 `json:"runId" bson:"runId"`
	LastSync      time.Time              `json:"lastSync" bson:"lastSync"`
	Type          string                 `json:"type" bson:"type"`
	TotalProducts int                    `json:"totalProducts" bson:"totalProducts"`
	StoreStats    StoreStats             `json:"storeStats" bson:"storeStats"`
	Chains        map[string]ChainStatus `json:"chains" bson:"chains"`
}

// ChainInfo is one entry of the --list output.
type ChainInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChainList is the --list output.
type ChainList struct {
	Chains []ChainInfo `json:"chains"`
}
