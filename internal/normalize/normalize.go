package normalize

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultTrade        = "General"
	defaultDescription  = "Unknown item"
	defaultUnit         = "EA"
	defaultQty          = 1.0
	defaultDocumentType = "unknown"
)

// Normalize reconciles a raw extraction into an AnalysisResult. It never
// fails: missing or unusable fields fall back to defaults.
func Normalize(raw RawExtraction, extractedAt time.Time) AnalysisResult {
	_, items := sourceItems(raw)

	result := AnalysisResult{
		LineItems:    make([]LineItem, 0, len(items)),
		ExtractedAt:  extractedAt,
		DocumentType: documentType(raw),
	}
	for _, item := range items {
		result.LineItems = append(result.LineItems, normalizeItem(item))
	}
	result.Summary = summarize(result.LineItems)
	return result
}

func normalizeItem(item rawItem) LineItem {
	li := LineItem{
		Trade:       item.text(tradeKeys, defaultTrade),
		Description: item.text(descriptionKeys, defaultDescription),
		Qty:         item.number(qtyKeys, defaultQty, true),
		Unit:        item.text(unitKeys, defaultUnit),
		UnitPrice:   item.number(unitPriceKeys, 0, false),
		Total:       item.number(totalKeys, 0, false),
	}
	if notes, ok := item[notesKeys[0]].(string); ok {
		li.Notes = &notes
	}
	return li
}

func summarize(items []LineItem) Summary {
	total := decimal.Zero
	trades := make([]string, 0)
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Total))
		if !slices.Contains(trades, item.Trade) {
			trades = append(trades, item.Trade)
		}
	}
	slices.Sort(trades)

	amount, _ := total.Float64()
	return Summary{
		TotalAmount: amount,
		ItemCount:   len(items),
		Trades:      trades,
	}
}

// documentType reads the extractor's own classification hint.
func documentType(raw RawExtraction) string {
	meta, ok := raw["metadata"].(map[string]any)
	if !ok {
		return defaultDocumentType
	}
	for _, key := range []string{"documentType", "classification"} {
		if s, ok := meta[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return defaultDocumentType
}

// text returns the first non-blank string among keys.
func (r rawItem) text(keys []string, def string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return def
}

// number returns the first usable number among keys. Numeric strings such as
// "$1,250.00" are accepted. With nonNegative set, negative values are skipped.
func (r rawItem) number(keys []string, def float64, nonNegative bool) float64 {
	for _, k := range keys {
		f, ok := toFloat(r[k])
		if !ok || (nonNegative && f < 0) {
			continue
		}
		return f
	}
	return def
}

func toFloat(v any) (float64, bool) {
	f, ok := parseNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
