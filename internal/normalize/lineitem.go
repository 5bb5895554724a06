package normalize

import "time"

// LineItem is one canonical priced entry of an estimate.
type LineItem struct {
	Trade       string  `json:"trade"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"` // As reported by the extractor
	Notes       *string `json:"notes,omitempty"`
}

// Summary aggregates the line items of one analysis.
type Summary struct {
	TotalAmount float64  `json:"totalAmount"`
	ItemCount   int      `json:"itemCount"`
	Trades      []string `json:"trades"` // Distinct, sorted
}

// AnalysisResult is the canonical record produced from one extraction.
type AnalysisResult struct {
	LineItems    []LineItem `json:"lineItems"`
	Summary      Summary    `json:"summary"`
	ExtractedAt  time.Time  `json:"extractedAt"`
	DocumentType string     `json:"documentType"`
}

// Descriptions returns "trade description" strings for each line item, the
// form the classifier consumes.
func (r AnalysisResult) Descriptions() []string {
	out := make([]string, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		out = append(out, item.Trade+" "+item.Description)
	}
	return out
}
