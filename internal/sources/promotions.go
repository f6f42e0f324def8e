package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealhawk/gamedeals-aggregator/internal/config"
	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/stores"
	"github.com/dealhawk/gamedeals-aggregator/internal/util"
)

// vendorRetailerID is the registry ID for the vendor's own storefront.
const vendorRetailerID = "25"

// imageRolePriority orders the vendor's image tags from best to worst.
var imageRolePriority = []string{"OfferImageWide", "DealThumbnail", "Thumbnail"}

// Raw shapes for the vendor's nested promotions catalog.
type vendorCatalog struct {
	Data struct {
		Catalog struct {
			SearchStore struct {
				Elements []vendorElement `json:"elements"`
			} `json:"searchStore"`
		} `json:"Catalog"`
	} `json:"data"`
}

type vendorElement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProductSlug string `json:"productSlug"`
	KeyImages   []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"keyImages"`
	Categories []struct {
		Path string `json:"path"`
	} `json:"categories"`
	Price struct {
		TotalPrice struct {
			// Prices arrive in cents.
			OriginalPrice int `json:"originalPrice"`
			DiscountPrice int `json:"discountPrice"`
		} `json:"totalPrice"`
	} `json:"price"`
	Promotions *struct {
		PromotionalOffers         []vendorOfferGroup `json:"promotionalOffers"`
		UpcomingPromotionalOffers []vendorOfferGroup `json:"upcomingPromotionalOffers"`
	} `json:"promotions"`
}

type vendorOfferGroup struct {
	PromotionalOffers []vendorOffer `json:"promotionalOffers"`
}

type vendorOffer struct {
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	DiscountSetting struct {
		DiscountPercentage int `json:"discountPercentage"`
	} `json:"discountSetting"`
}

// VendorPromotionsAdapter walks the vendor's promotions catalog. An element
// qualifies when it carries an active offer or an upcoming one; active wins.
type VendorPromotionsAdapter struct {
	fetcher  *fetcher
	registry *stores.Registry
	baseURL  string
}

func NewVendorPromotionsAdapter(cfg *config.Config, registry *stores.Registry) *VendorPromotionsAdapter {
	return &VendorPromotionsAdapter{
		fetcher:  newFetcher(cfg.FetchTimeout),
		registry: registry,
		baseURL:  cfg.VendorPromotionsURL,
	}
}

func (a *VendorPromotionsAdapter) Name() string { return string(models.ProviderVendorPromos) }

func (a *VendorPromotionsAdapter) FetchAndNormalize(ctx context.Context) ([]models.CanonicalDeal, error) {
	body, err := a.fetcher.get(ctx, a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("vendor promotions fetch: %w", err)
	}
	return a.normalize(body)
}

func (a *VendorPromotionsAdapter) normalize(body []byte) ([]models.CanonicalDeal, error) {
	var catalog vendorCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("vendor promotions parse: %w", err)
	}

	elements := catalog.Data.Catalog.SearchStore.Elements
	deals := make([]models.CanonicalDeal, 0, len(elements))
	for i := range elements {
		deal, ok := a.normalizeElement(&elements[i])
		if !ok {
			continue
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

func (a *VendorPromotionsAdapter) normalizeElement(el *vendorElement) (models.CanonicalDeal, bool) {
	if el.ID == "" || strings.TrimSpace(el.Title) == "" || el.Promotions == nil {
		return models.CanonicalDeal{}, false
	}

	active := firstOffer(el.Promotions.PromotionalOffers)
	upcoming := firstOffer(el.Promotions.UpcomingPromotionalOffers)
	offer := active
	isUpcoming := false
	if offer == nil {
		offer = upcoming
		isUpcoming = true
	}
	if offer == nil {
		return models.CanonicalDeal{}, false
	}

	original := float64(el.Price.TotalPrice.OriginalPrice) / 100
	sale := float64(el.Price.TotalPrice.DiscountPrice) / 100
	if offer.DiscountSetting.DiscountPercentage >= 100 {
		// Full giveaway. Upcoming offers haven't taken effect on the
		// catalog price yet, so reprice from the discount setting rather
		// than trusting discountPrice.
		sale = 0
	}

	savings := util.SavingsPercent(original, sale)
	title := el.Title
	if isUpcoming {
		title = fmt.Sprintf("[Coming Soon %s] %s", offer.StartDate.Format("Jan 2"), el.Title)
	}

	description := util.CollapseWhitespace(el.Description)
	window := fmt.Sprintf("Promotion runs %s to %s.",
		offer.StartDate.Format("Jan 2, 2006"), offer.EndDate.Format("Jan 2, 2006"))
	if description != "" {
		description += " " + window
	} else {
		description = window
	}

	affiliate := a.registry.BuildAffiliateURL("", vendorRetailerID, el.ProductSlug, "")
	affiliate = stores.AppendTrackingParams(affiliate, "gamedeals", "aggregator", "vendor-promotions")
	storeCfg := a.registry.Resolve(vendorRetailerID)

	// A window that doesn't extend past its start is provider garbage;
	// treat the promotion as open-ended rather than dropping the deal.
	expiry := offer.EndDate.UTC()
	if !offer.EndDate.After(offer.StartDate) {
		expiry = time.Time{}
	}

	categories := make([]string, 0, len(el.Categories))
	for _, c := range el.Categories {
		if c.Path != "" {
			categories = append(categories, c.Path)
		}
	}

	return models.CanonicalDeal{
		ID:             models.DealID(models.ProviderVendorPromos, el.ID),
		Title:          title,
		Slug:           util.Slugify(el.Title),
		ImageURL:       bestImage(el),
		Description:    util.Truncate(description, maxDescription),
		OriginalPrice:  util.FormatPrice(original),
		DealPrice:      util.FormatPrice(sale),
		SavingsPercent: savings,
		AffiliateURL:   affiliate,
		RetailerID:     vendorRetailerID,
		RetailerName:   storeCfg.Name,
		DatePosted:     offer.StartDate.UTC(),
		ExpiryDate:     expiry,
		Provider:       models.ProviderVendorPromos,
		ProviderItemID: el.ID,
		IsUpcoming:     isUpcoming,
		Categories:     categories,
	}, true
}

func firstOffer(groups []vendorOfferGroup) *vendorOffer {
	for _, g := range groups {
		if len(g.PromotionalOffers) > 0 {
			return &g.PromotionalOffers[0]
		}
	}
	return nil
}

// bestImage walks the fixed role priority list, then settles for the
// first image the element has at all.
func bestImage(el *vendorElement) string {
	for _, role := range imageRolePriority {
		for _, img := range el.KeyImages {
			if img.Type == role && img.URL != "" {
				return img.URL
			}
		}
	}
	for _, img := range el.KeyImages {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}
