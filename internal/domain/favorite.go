package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FavoriteSource identifies which flow saved the product.
type FavoriteSource string

const (
	SourceDupeSearch FavoriteSource = "dupe-search"
	SourceScanner    FavoriteSource = "scanner"
	SourceManual     FavoriteSource = "manual"
)

// ValidSource reports whether s is one of the known favorite sources.
func ValidSource(s FavoriteSource) bool {
	switch s {
	case SourceDupeSearch, SourceScanner, SourceManual:
		return true
	}
	return false
}

// Favorite is a user's saved reference to a product, with denormalized
// display fields so clients can render it without calling the engine again.
// At most one favorite may exist per (OwnerID, ProductKey).
type Favorite struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	OwnerID       uuid.UUID      `json:"owner_id" db:"owner_id"`
	ProductKey    string         `json:"product_key" db:"product_key"`
	ProductName   string         `json:"product_name" db:"product_name"`
	BrandName     string         `json:"brand_name" db:"brand_name"`
	Price         float64        `json:"price" db:"price"`
	OriginalPrice *float64       `json:"original_price,omitempty" db:"original_price"`
	Ingredients   string         `json:"ingredients,omitempty" db:"ingredients"`
	Similarity    float64        `json:"similarity" db:"similarity"`
	Category      string         `json:"category" db:"category"`
	ProductType   string         `json:"product_type" db:"product_type"`
	Source        FavoriteSource `json:"source" db:"source"`
	Notes         string         `json:"notes,omitempty" db:"notes"`
	AddedAt       time.Time      `json:"added_at" db:"added_at"`
}

// Savings returns the absolute amount saved versus the original price.
// Zero when no original price is known or it does not exceed the price.
func (f *Favorite) Savings() float64 {
	if f.OriginalPrice == nil || *f.OriginalPrice <= f.Price {
		return 0
	}
	return *f.OriginalPrice - f.Price
}

// SavingsPercentage returns the savings as a percentage of the original price.
func (f *Favorite) SavingsPercentage() float64 {
	if f.OriginalPrice == nil || *f.OriginalPrice <= f.Price || *f.OriginalPrice == 0 {
		return 0
	}
	return (*f.OriginalPrice - f.Price) / *f.OriginalPrice * 100
}

// ProductKeyFor synthesizes the canonical product key from brand and name.
// Used when the client does not supply an external key, so the same product
// always dedupes to the same row regardless of which flow saved it.
func ProductKeyFor(brandName, productName string) string {
	slug := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.Join(strings.Fields(s), "-")
	}
	b, p := slug(brandName), slug(productName)
	if b == "" {
		return p
	}
	return b + "::" + p
}
