package inventory

import "time"

// Location is where an item is stored in the household.
type Location string

const (
	LocationFridge  Location = "fridge"
	LocationFreezer Location = "freezer"
	LocationPantry  Location = "pantry"
	LocationCounter Location = "counter"
)

// Item is a persisted inventory record. Price is stored in cents.
type Item struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
	Category     string    `json:"category"`
	Location     Location  `json:"location"`
	PurchaseDate time.Time `json:"purchase_date"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Price        int       `json:"price,omitempty"` // cents
	InputMethod  string    `json:"input_method"`    // "receipt_scan" or "product_scan"
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ShoppingItem is one entry in the household shopping list.
type ShoppingItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"` // "urgent" or "normal"
	Reason    string    `json:"reason"`   // "expiring", "low", "manual", "expired"
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
