package scanning

import "fmt"

// systemPrompt is shared by all providers
const systemPrompt = `You are an expert insurance estimate reviewer. You read contractor and insurance carrier repair estimates (property, auto and commercial) and transcribe every line item exactly as written. You never invent line items and you never recompute totals.`

const extractionPrompt = `You are analyzing a repair estimate written by %s. Carefully read every page and extract each line item.

For each line item capture:
- trade: the trade or category heading the item sits under (e.g. "Roofing", "Drywall", "Body Labor")
- description: the line item description as written
- quantity: the numeric quantity
- unit: the unit of measure (e.g. "SF", "LF", "SQ", "EA", "HR")
- unitPrice: the price per unit
- total: the line total exactly as printed
- notes: any note attached to the line, otherwise omit

Also report what kind of estimate this is in metadata.documentType: "property", "auto", "commercial" or "unknown".

Return ONLY valid JSON in this exact format:
{
  "items": [
    {"trade": "", "description": "", "quantity": 0, "unit": "", "unitPrice": 0.00, "total": 0.00, "notes": ""}
  ],
  "metadata": {"documentType": "unknown"}
}

Important:
- Numbers must be JSON numbers, not strings
- If a field is missing on the estimate, omit it
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// userPrompt returns the extraction instructions for a document of type t.
func userPrompt(t DocumentType) string {
	source := "a contractor"
	if t == Carrier {
		source = "an insurance carrier"
	}
	return fmt.Sprintf(extractionPrompt, source)
}
