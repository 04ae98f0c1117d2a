package vision

import "time"

// Token budgets per phase. Classification only needs a one-field
// answer, so its budget stays small and a misfired request fails
// cheaply before the larger extract budget is spent.
const (
	classifyMaxTokens = 500
	receiptMaxTokens  = 4096
	productMaxTokens  = 2048
)

// requestTimeout bounds every backend call. Retry is an explicit user
// action, never automatic backoff.
const requestTimeout = 60 * time.Second

const classifyPrompt = `Look at this image and determine if it's a RECEIPT (shopping receipt with multiple items and prices) or a PRODUCT (single packaged grocery item, label, or food item).

Return ONLY a JSON object with this exact structure:
{"type": "receipt" or "product"}

Be accurate - receipts have multiple line items, totals, and store names. Products are single items with packaging or labels.

If the image is neither a receipt nor a product, return:
{"type": "unknown", "error": "short reason"}`

const receiptPrompt = `Analyze this grocery receipt image and extract all items with their details. Return ONLY valid JSON with this exact structure:
{
  "items": [
    {
      "name": "item name",
      "quantity": 1,
      "price": 0.00,
      "category": "dairy|meat|seafood|produce|vegetables|fruits|frozen|beverages|condiments|snacks|grains|canned|bakery|other",
      "confidence": "high|medium|low"
    }
  ],
  "total": 0.00,
  "store": "store name if visible",
  "date": "YYYY-MM-DD if visible"
}

Be thorough and extract every line item. If you are uncertain about any field, use "medium" or "low" confidence. Do not include any text before or after the JSON.`

const productPrompt = `Analyze this product image (packaging, label, or the product itself) and extract product information. Return ONLY valid JSON with this exact structure:
{
  "name": "product name",
  "brand": "brand if visible",
  "quantity": 1,
  "category": "dairy|meat|seafood|produce|vegetables|fruits|frozen|beverages|condiments|snacks|grains|canned|bakery|other",
  "estimatedExpiry": "YYYY-MM-DD if visible on packaging",
  "confidence": "high|medium|low"
}

Important: "quantity" must be the integer count of items actually visible in the image. If you see six apples, quantity is 6, not 1. Seeing "some" of an item is not quantity 1.

If an expiry date is printed on the packaging, include it. Otherwise omit the field.`

func promptFor(kind Kind) (string, int) {
	if kind == KindReceipt {
		return receiptPrompt, receiptMaxTokens
	}
	return productPrompt, productMaxTokens
}
