package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedExtraction is returned when the model output is not a JSON
// object of the expected envelope.
var ErrMalformedExtraction = errors.New("malformed extraction")

// RawExtraction is the decoded, untrusted model output.
type RawExtraction map[string]any

// extractionSchema only pins the envelope. Entries inside the item lists are
// reconciled field by field, so their properties stay unconstrained.
const extractionSchema = `{
  "type": "object",
  "properties": {
    "items":     {"type": "array", "items": {"type": "object"}},
    "lineItems": {"type": "array", "items": {"type": "object"}},
    "metadata":  {"type": "object"}
  }
}`

var envelope = jsonschema.MustCompileString("extraction.json", extractionSchema)

// Decode parses model output into a RawExtraction. Anything other than an
// object matching the envelope schema is an ErrMalformedExtraction.
func Decode(data []byte) (RawExtraction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding json: %w", ErrMalformedExtraction, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrMalformedExtraction, doc)
	}

	if err := envelope.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedExtraction, err)
	}

	return RawExtraction(obj), nil
}
