package inventory

import (
	"strings"
	"time"
)

// Category lookup tables. Matching is case-insensitive; anything not
// listed resolves to the defaults.

var categoryLocations = map[string]Location{
	"dairy":      LocationFridge,
	"meat":       LocationFridge,
	"seafood":    LocationFridge,
	"produce":    LocationFridge,
	"vegetables": LocationFridge,
	"fruits":     LocationCounter,
	"frozen":     LocationFreezer,
	"beverages":  LocationFridge,
	"condiments": LocationFridge,
	"snacks":     LocationPantry,
	"grains":     LocationPantry,
	"canned":     LocationPantry,
	"bakery":     LocationCounter,
}

var categoryShelfLifeDays = map[string]int{
	"dairy":      7,
	"meat":       3,
	"seafood":    2,
	"produce":    7,
	"vegetables": 7,
	"fruits":     5,
	"frozen":     90,
	"beverages":  30,
	"condiments": 60,
	"snacks":     90,
	"grains":     365,
	"canned":     365,
	"bakery":     3,
}

const (
	defaultLocation      = LocationPantry
	defaultShelfLifeDays = 7
)

// LocationFor maps a free-text category label to a storage location.
func LocationFor(category string) Location {
	if loc, ok := categoryLocations[strings.ToLower(strings.TrimSpace(category))]; ok {
		return loc
	}
	return defaultLocation
}

// ShelfLifeDays returns the default shelf-life estimate for a category.
func ShelfLifeDays(category string) int {
	if days, ok := categoryShelfLifeDays[strings.ToLower(strings.TrimSpace(category))]; ok {
		return days
	}
	return defaultShelfLifeDays
}

// EstimateExpiry returns now plus the category's default shelf life.
func EstimateExpiry(category string, now time.Time) time.Time {
	return now.AddDate(0, 0, ShelfLifeDays(category))
}
