package normalize

// Shape identifies which historical schema an extraction arrived in.
type Shape string

const (
	ShapeCurrent Shape = "items"
	ShapeLegacy  Shape = "lineItems"
	ShapeEmpty   Shape = "empty"
)

// DetectShape picks the item list to read. A non-empty items list wins over
// lineItems; neither present is a valid empty extraction.
func DetectShape(raw RawExtraction) Shape {
	if len(objectList(raw["items"])) > 0 {
		return ShapeCurrent
	}
	if len(objectList(raw["lineItems"])) > 0 {
		return ShapeLegacy
	}
	return ShapeEmpty
}

// rawItem is one entry of either schema. Each accessor lists the field names
// to try in priority order, which keeps the legacy aliases in one place.
type rawItem map[string]any

var (
	tradeKeys       = []string{"trade"}
	descriptionKeys = []string{"description"}
	qtyKeys         = []string{"quantity", "qty"}
	unitKeys        = []string{"unit"}
	unitPriceKeys   = []string{"unitPrice", "unit_price"}
	totalKeys       = []string{"total"}
	notesKeys       = []string{"notes"}
)

// sourceItems returns the entries of the list chosen by DetectShape.
func sourceItems(raw RawExtraction) (Shape, []rawItem) {
	shape := DetectShape(raw)
	switch shape {
	case ShapeCurrent:
		return shape, objectList(raw["items"])
	case ShapeLegacy:
		return shape, objectList(raw["lineItems"])
	default:
		return shape, nil
	}
}

// objectList keeps the object entries of a JSON array and drops the rest.
func objectList(v any) []rawItem {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]rawItem, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, rawItem(m))
		}
	}
	return out
}
