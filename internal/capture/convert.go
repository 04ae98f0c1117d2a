package capture

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// decodeUpload decodes a gallery upload into a raster image. PDFs are
// rasterized from their first page (most receipts are single page) and
// HEIC/HEIF photos (common on iPhones) go through the pure-Go decoder,
// since Go's standard image package doesn't support them.
func decodeUpload(raw []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" {
		return pdfFirstPage(raw)
	}

	if isHEIC(raw) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// isHEIC checks the ftyp box brand for the HEIC/HEIF signatures.
func isHEIC(data []byte) bool {
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
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
