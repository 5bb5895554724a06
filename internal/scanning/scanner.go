package scanning

import (
	"context"
	"fmt"
	"strings"
)

// DocumentType identifies who produced an estimate.
type DocumentType string

const (
	Contractor DocumentType = "contractor"
	Carrier    DocumentType = "carrier"
)

// ParseDocumentType accepts "contractor" or "carrier", case-insensitively.
func ParseDocumentType(s string) (DocumentType, error) {
	switch t := DocumentType(strings.ToLower(strings.TrimSpace(s))); t {
	case Contractor, Carrier:
		return t, nil
	default:
		return "", fmt.Errorf("unknown document type %q", s)
	}
}

// Document is the input to an extraction: raw bytes and their MIME type.
type Document struct {
	Data        []byte
	ContentType string
	Type        DocumentType
}

// Extractor defines the interface for vision-model extraction
type Extractor interface {
	// Extract sends the document to the model and returns the JSON text of
	// its answer, with any surrounding prose or code fences removed
	Extract(ctx context.Context, doc Document) (string, error)
	// Close closes the extractor and releases resources
	Close() error
}
