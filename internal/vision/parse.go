package vision

import (
	"encoding/json"
	"strings"
)

// extractJSON recovers a JSON object from free-form model output. The
// model may wrap the object in prose or markdown code fences, so this
// is a deliberate two-step algorithm: take the first-{ to last-}
// substring and try it, then strip fence markers and try once more.
func extractJSON(text string) (string, error) {
	if candidate, ok := braceSubstring(text); ok {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	stripped := stripFences(text)
	if candidate, ok := braceSubstring(stripped); ok {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", &UnparseableError{Raw: text}
}

func braceSubstring(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ParseClassification reads the classify-phase answer. An answer that
// cannot be parsed at all defaults to product; this is documented
// behavior, not an error. An explicit "unknown" answer is preserved as
// a distinct outcome with the model's reason.
func ParseClassification(text string) Classification {
	candidate, err := extractJSON(text)
	if err != nil {
		return Classification{Kind: KindProduct}
	}

	var answer struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(candidate), &answer); err != nil {
		return Classification{Kind: KindProduct}
	}

	switch answer.Type {
	case "receipt":
		return Classification{Kind: KindReceipt}
	case "unknown":
		reason := answer.Error
		if reason == "" {
			reason = "could not identify as receipt or product"
		}
		return Classification{Kind: KindUnknown, Reason: reason}
	}
	return Classification{Kind: KindProduct}
}

// ParseReceipt validates and normalizes a receipt extraction. The
// items array must be present (it may be empty); optional per-item
// fields are backfilled with defaults since a human reviews the result
// next.
func ParseReceipt(text string) (*ReceiptData, error) {
	candidate, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Items *[]LineItem `json:"items"`
		Total float64     `json:"total"`
		Store string      `json:"store"`
		Date  string      `json:"date"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, &UnparseableError{Raw: text}
	}
	if raw.Items == nil {
		return nil, &ValidationError{Field: "items", Raw: text}
	}

	data := &ReceiptData{
		Items: *raw.Items,
		Total: raw.Total,
		Store: strings.TrimSpace(raw.Store),
		Date:  strings.TrimSpace(raw.Date),
	}
	for i := range data.Items {
		normalizeItem(&data.Items[i])
	}
	return data, nil
}

// ParseProduct validates and normalizes a product extraction. The name
// is the only required field.
func ParseProduct(text string) (*ProductData, error) {
	candidate, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var data ProductData
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil, &UnparseableError{Raw: text}
	}

	data.Name = strings.TrimSpace(data.Name)
	if data.Name == "" {
		return nil, &ValidationError{Field: "name", Raw: text}
	}
	if data.Quantity < 1 {
		data.Quantity = 1
	}
	data.Category = normalizeCategory(data.Category)
	data.Confidence = normalizeConfidence(data.Confidence)
	return &data, nil
}

func normalizeItem(item *LineItem) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if item.Price < 0 {
		item.Price = 0
	}
	item.Category = normalizeCategory(item.Category)
	item.Confidence = normalizeConfidence(item.Confidence)
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return "other"
	}
	return category
}

func normalizeConfidence(c Confidence) Confidence {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ConfidenceMedium
}
