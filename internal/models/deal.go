package models

import (
	"errors"
	"time"
)

// ErrNoDeals is returned when a persistence call is asked to write an empty set.
var ErrNoDeals = errors.New("no deals to persist")

// Provider identifies which source adapter produced a deal.
type Provider string

const (
	ProviderDiscountAPI   Provider = "discount-api"
	ProviderStorefrontRSS Provider = "storefront-rss"
	ProviderVendorPromos  Provider = "vendor-promotions"
)

// PriceFree is the canonical price string for free deals.
const PriceFree = "Free"

// CanonicalDeal is the unified, source-agnostic deal record produced by
// normalization. ID doubles as the Firestore document ID and upsert key.
type CanonicalDeal struct {
	ID             string    `firestore:"-" validate:"required"`
	Title          string    `firestore:"title" validate:"required"`
	Slug           string    `firestore:"slug" validate:"required"`
	ImageURL       string    `firestore:"imageUrl,omitempty" validate:"omitempty,url"`
	Description    string    `firestore:"description,omitempty"`
	OriginalPrice  string    `firestore:"originalPrice" validate:"required"`
	DealPrice      string    `firestore:"dealPrice" validate:"required"`
	SavingsPercent int       `firestore:"savingsPercent" validate:"gte=0,lte=100"`
	AffiliateURL   string    `firestore:"affiliateUrl" validate:"required,url"`
	RetailerID     string    `firestore:"retailerId"`
	RetailerName   string    `firestore:"retailerName"`
	DatePosted     time.Time `firestore:"datePosted" validate:"required"`
	ExpiryDate     time.Time `firestore:"expiryDate,omitempty"`
	Provider       Provider  `firestore:"provider" validate:"required"`
	ProviderItemID string    `firestore:"providerItemId" validate:"required"`
	IsUpcoming     bool      `firestore:"isUpcoming"`
	Categories     []string  `firestore:"categories,omitempty"`
}

// DealID builds the stable identity for a deal: unique per
// (provider, provider-native-id), stable across runs.
func DealID(provider Provider, nativeID string) string {
	return string(provider) + "-" + nativeID
}

// IsFree reports whether the deal costs nothing.
func (d *CanonicalDeal) IsFree() bool {
	return d.DealPrice == PriceFree
}
