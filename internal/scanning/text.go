package scanning

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// DocumentText returns the embedded text layer of a PDF. Other formats, and
// scanned PDFs without a text layer, yield an empty string.
func DocumentText(doc Document) (text string, err error) {
	if normalizeMIME(doc.ContentType) != mimePDF {
		return "", nil
	}

	// the parser panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading PDF text: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	return buf.String(), nil
}
