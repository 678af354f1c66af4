// Package result assembles the batch output and the persistence projection
// of merged products.
package result

import (
	"time"

	"github.com/drstein77/chainprices/internal/merge"
	"github.com/drstein77/chainprices/internal/models"
)

// TimeFormat is used for fetchedAt.
const TimeFormat = "2006-01-02T15:04:05Z"

// Summarize builds the fetch summary of a batch from per-chain results, kept
// in the order they were requested.
func Summarize(results []models.ChainResult) models.FetchSummary {
	summary := models.FetchSummary{
		Order:  make([]string, 0, len(results)),
		Chains: make(map[string]int, len(results)),
		Failed: make(map[string]string),
	}
	for _, res := range results {
		summary.Order = append(summary.Order, res.ChainID)
		if res.Err != nil {
			summary.Chains[res.ChainID] = 0
			summary.Failed[res.ChainID] = res.Err.Error()
			continue
		}
		summary.Chains[res.ChainID] = len(res.Products)
		if len(res.Products) > 0 {
			summary.Success = true
		}
	}
	return summary
}

// Build wraps a merged catalog into the batch result.
func Build(catalog *merge.Catalog, summary models.FetchSummary, now time.Time) models.Result {
	products := []models.MergedProduct{}
	if catalog != nil {
		products = catalog.Products()
	}

	chains := make(map[string]int, len(summary.Chains))
	for id, n := range summary.Chains {
		chains[id] = n
	}

	return models.Result{
		Success:       summary.Success && len(products) > 0,
		TotalProducts: len(products),
		ChainsSummary: chains,
		Products:      products,
		FetchedAt:     now.UTC().Format(TimeFormat),
	}
}
