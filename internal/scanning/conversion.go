package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	mimePDF = "application/pdf"
	mimePNG = "image/png"

	// maxPages bounds how many PDF pages are rendered for image-only providers
	maxPages = 10
)

// normalizeMIME lowercases the MIME type and drops parameters.
func normalizeMIME(contentType string) string {
	mimeType, _, _ := strings.Cut(contentType, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "image/jpeg"
	}
	return mimeType
}

// pdfToImages renders up to maxPages pages of a PDF as PNG images
func pdfToImages(pdfData []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := min(doc.NumPage(), maxPages)
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages := make([][]byte, 0, n)
	for i := range n {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding PNG: %w", err)
		}
		pages = append(pages, buf.Bytes())
	}

	return pages, nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's standard image package doesn't support HEIC
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// preparePages turns a document into one or more PNG images, one per page.
func preparePages(data []byte, contentType string) ([][]byte, error) {
	mimeType := normalizeMIME(contentType)

	switch {
	case mimeType == mimePDF:
		pages, err := pdfToImages(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to images: %w", err)
		}
		return pages, nil
	case mimeType == mimePNG && !isHEICFormat(data):
		return [][]byte{data}, nil
	default:
		page, err := imageToPNG(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return [][]byte{page}, nil
	}
}
