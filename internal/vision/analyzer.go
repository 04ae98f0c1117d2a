package vision

import (
	"context"

	"github.com/pantrypal/pantry-tracker/internal/capture"
)

// Kind tags a captured image as a multi-item receipt or a single
// packaged product. KindUnknown is the explicit could-not-classify
// outcome the model may report.
type Kind string

const (
	KindReceipt Kind = "receipt"
	KindProduct Kind = "product"
	KindUnknown Kind = "unknown"
)

// Confidence is the per-item quality hint from the extraction model.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// LineItem is one extracted receipt line.
type LineItem struct {
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	Price      float64    `json:"price"`
	Category   string     `json:"category"`
	Confidence Confidence `json:"confidence"`
}

// ReceiptData is the extraction result for a receipt image.
type ReceiptData struct {
	Items []LineItem `json:"items"`
	Total float64    `json:"total,omitempty"`
	Store string     `json:"store,omitempty"`
	Date  string     `json:"date,omitempty"` // ISO 8601
}

// ProductData is the extraction result for a product image. Quantity
// is the count of visible items, not a presence flag.
type ProductData struct {
	Name            string     `json:"name"`
	Brand           string     `json:"brand,omitempty"`
	Quantity        int        `json:"quantity"`
	Category        string     `json:"category"`
	EstimatedExpiry string     `json:"estimatedExpiry,omitempty"` // YYYY-MM-DD
	Confidence      Confidence `json:"confidence"`
}

// Classification is the outcome of the classify phase.
type Classification struct {
	Kind Kind
	// Reason carries the model's error string when Kind is KindUnknown.
	Reason string
}

// Result is the combined outcome of both phases. Exactly one of
// Receipt/Product is set for the matching kind; neither is set for
// KindUnknown.
type Result struct {
	Kind          Kind
	Receipt       *ReceiptData
	Product       *ProductData
	UnknownReason string
}

// Analyzer runs the two-phase classify + extract protocol against a
// vision LLM backend.
type Analyzer interface {
	// Classify determines whether the image is a receipt or a product.
	Classify(ctx context.Context, img *capture.Image) (Classification, error)
	// Extract pulls the structured fields for an already-classified image.
	Extract(ctx context.Context, img *capture.Image, kind Kind) (*Result, error)
	// Close releases backend resources.
	Close() error
}

// Analyze runs the full two-phase protocol sequentially: classify
// first (small token budget, fails fast and cheaply), then extract
// with the type-specific prompt. An explicit unknown classification is
// a terminal outcome and skips the extract phase.
func Analyze(ctx context.Context, a Analyzer, img *capture.Image) (*Result, error) {
	c, err := a.Classify(ctx, img)
	if err != nil {
		return nil, err
	}
	if c.Kind == KindUnknown {
		return &Result{Kind: KindUnknown, UnknownReason: c.Reason}, nil
	}
	return a.Extract(ctx, img, c.Kind)
}
