package sources

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/dealhawk/gamedeals-aggregator/internal/config"
	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/stores"
	"github.com/dealhawk/gamedeals-aggregator/internal/util"
)

// storefrontRetailerID is the registry ID for the storefront behind the feed.
const storefrontRetailerID = "7"

const (
	minImageDimension = 100
	maxDescription    = 300
)

// StorefrontRSSAdapter parses a storefront's promotional RSS feed.
// Prices live in free-text descriptions, so extraction is regex based.
type StorefrontRSSAdapter struct {
	fetcher  *fetcher
	parser   *gofeed.Parser
	registry *stores.Registry
	feedURL  string
}

func NewStorefrontRSSAdapter(cfg *config.Config, registry *stores.Registry) *StorefrontRSSAdapter {
	return &StorefrontRSSAdapter{
		fetcher:  newFetcher(cfg.FetchTimeout),
		parser:   gofeed.NewParser(),
		registry: registry,
		feedURL:  cfg.StorefrontRSSURL,
	}
}

func (a *StorefrontRSSAdapter) Name() string { return string(models.ProviderStorefrontRSS) }

func (a *StorefrontRSSAdapter) FetchAndNormalize(ctx context.Context) ([]models.CanonicalDeal, error) {
	body, err := a.fetcher.get(ctx, a.feedURL)
	if err != nil {
		return nil, fmt.Errorf("storefront RSS fetch: %w", err)
	}
	return a.normalize(body)
}

func (a *StorefrontRSSAdapter) normalize(body []byte) ([]models.CanonicalDeal, error) {
	feed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("storefront RSS parse: %w", err)
	}

	deals := make([]models.CanonicalDeal, 0, len(feed.Items))
	for _, item := range feed.Items {
		deal, ok := a.normalizeItem(item)
		if !ok {
			continue
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

func (a *StorefrontRSSAdapter) normalizeItem(item *gofeed.Item) (models.CanonicalDeal, bool) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return models.CanonicalDeal{}, false
	}

	original, hasOriginal := util.ParsePrice(item.Description)
	sale, hasSale := util.ParsePriceAfter(item.Description, "now $")
	titleHasFree := strings.Contains(strings.ToLower(item.Title), "free")

	var originalPrice, dealPrice string
	var savings int
	switch {
	case titleHasFree || !hasSale:
		// No sale phrase means the item is a giveaway, not a discount.
		dealPrice = models.PriceFree
		savings = 100
		if hasOriginal {
			originalPrice = util.FormatPrice(original)
		} else {
			originalPrice = models.PriceFree
		}
	case hasOriginal && sale < original:
		originalPrice = util.FormatPrice(original)
		dealPrice = util.FormatPrice(sale)
		savings = util.SavingsPercent(original, sale)
	default:
		slog.Warn("Skipping RSS item with unusable pricing", "title", item.Title)
		return models.CanonicalDeal{}, false
	}

	nativeID := itemNativeID(item)
	affiliate := a.registry.BuildAffiliateURL("", storefrontRetailerID, "", item.Link)
	affiliate = stores.AppendTrackingParams(affiliate, "gamedeals", "aggregator", "storefront-rss")
	storeCfg := a.registry.Resolve(storefrontRetailerID)

	posted := time.Now().UTC()
	if item.PublishedParsed != nil {
		posted = item.PublishedParsed.UTC()
	}

	description := util.Truncate(util.CollapseWhitespace(util.StripHTML(item.Description)), maxDescription)

	return models.CanonicalDeal{
		ID:             models.DealID(models.ProviderStorefrontRSS, nativeID),
		Title:          item.Title,
		Slug:           util.Slugify(item.Title),
		ImageURL:       a.extractImage(item),
		Description:    description,
		OriginalPrice:  originalPrice,
		DealPrice:      dealPrice,
		SavingsPercent: savings,
		AffiliateURL:   affiliate,
		RetailerID:     storefrontRetailerID,
		RetailerName:   storeCfg.Name,
		DatePosted:     posted,
		Provider:       models.ProviderStorefrontRSS,
		ProviderItemID: nativeID,
		Categories:     item.Categories,
	}, true
}

// extractImage picks the best promotional image for a feed item:
// a reasonably-sized inline image first, then an image enclosure,
// then any inline image as a last resort.
func (a *StorefrontRSSAdapter) extractImage(item *gofeed.Item) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Description))
	if err == nil {
		var sized, any string
		doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, ok := s.Attr("src")
			if !ok || src == "" {
				return true
			}
			if any == "" {
				any = src
			}
			if imageLargeEnough(s) {
				sized = src
				return false
			}
			return true
		})
		if sized != "" {
			return sized
		}
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				return enc.URL
			}
		}
		return any
	}

	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func imageLargeEnough(s *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(v, "px")); err == nil && n >= minImageDimension {
				return true
			}
		}
	}
	return false
}

// itemNativeID prefers the feed GUID and falls back to hashing the link,
// so re-fetches map to the same canonical deal.
func itemNativeID(item *gofeed.Item) string {
	if item.GUID != "" {
		return util.Slugify(item.GUID)
	}
	sum := sha256.Sum256([]byte(item.Link + item.Title))
	return hex.EncodeToString(sum[:8])
}
