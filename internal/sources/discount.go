package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/dealhawk/gamedeals-aggregator/internal/config"
	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/stores"
	"github.com/dealhawk/gamedeals-aggregator/internal/util"
)

// rawDiscountDeal mirrors one record of the discount API's JSON array.
// Prices arrive as strings.
type rawDiscountDeal struct {
	DealID             string  `json:"dealID"`
	Title              string  `json:"title"`
	StoreID            string  `json:"storeID"`
	GameID             string  `json:"gameID"`
	SalePrice          string  `json:"salePrice"`
	NormalPrice        string  `json:"normalPrice"`
	Savings            string  `json:"savings"`
	SteamRatingPercent string  `json:"steamRatingPercent"`
	Thumb              string  `json:"thumb"`
	LastChange         int64   `json:"lastChange"`
	DealRating         string  `json:"dealRating"`
	IsOnSale           string  `json:"isOnSale"`
	MetacriticScore    string  `json:"metacriticScore"`
	ReleaseDate        int64   `json:"releaseDate"`
	SteamAppID         *string `json:"steamAppID"`
}

// DiscountAPIAdapter pulls deals from the JSON discount listings API.
type DiscountAPIAdapter struct {
	fetcher  *fetcher
	registry *stores.Registry
	cfg      *config.Config
}

func NewDiscountAPIAdapter(cfg *config.Config, registry *stores.Registry) *DiscountAPIAdapter {
	return &DiscountAPIAdapter{
		fetcher:  newFetcher(cfg.FetchTimeout),
		registry: registry,
		cfg:      cfg,
	}
}

func (a *DiscountAPIAdapter) Name() string { return string(models.ProviderDiscountAPI) }

func (a *DiscountAPIAdapter) FetchAndNormalize(ctx context.Context) ([]models.CanonicalDeal, error) {
	q := url.Values{}
	q.Set("upperPrice", strconv.Itoa(a.cfg.MaxPriceDollars))
	q.Set("steamRating", strconv.Itoa(a.cfg.MinSteamRating))
	q.Set("pageSize", "60")
	q.Set("sortBy", "Savings")
	q.Set("onSale", "1")
	if a.cfg.DiscountStoreFilter != "" {
		q.Set("storeID", a.cfg.DiscountStoreFilter)
	}

	body, err := a.fetcher.get(ctx, a.cfg.DiscountAPIBaseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("discount API fetch: %w", err)
	}
	return a.normalize(body), nil
}

// normalize maps the raw payload to canonical deals, dropping records it
// cannot price and records under the savings threshold.
func (a *DiscountAPIAdapter) normalize(body []byte) []models.CanonicalDeal {
	var raw []rawDiscountDeal
	if err := json.Unmarshal(body, &raw); err != nil {
		slog.Warn("Discount API payload malformed, skipping source", "error", err)
		return nil
	}

	deals := make([]models.CanonicalDeal, 0, len(raw))
	for _, r := range raw {
		deal, ok := a.normalizeOne(r)
		if !ok {
			continue
		}
		deals = append(deals, deal)
	}
	return deals
}

func (a *DiscountAPIAdapter) normalizeOne(r rawDiscountDeal) (models.CanonicalDeal, bool) {
	if r.Title == "" || r.DealID == "" {
		return models.CanonicalDeal{}, false
	}

	original, err := strconv.ParseFloat(r.NormalPrice, 64)
	if err != nil {
		slog.Warn("Skipping deal with unparsable original price", "title", r.Title, "price", r.NormalPrice)
		return models.CanonicalDeal{}, false
	}
	sale, err := strconv.ParseFloat(r.SalePrice, 64)
	if err != nil {
		slog.Warn("Skipping deal with unparsable sale price", "title", r.Title, "price", r.SalePrice)
		return models.CanonicalDeal{}, false
	}

	savings := util.SavingsPercent(original, sale)
	free := sale <= 0
	if !free && savings < a.cfg.MinSavingsPercent {
		return models.CanonicalDeal{}, false
	}

	gameID := ""
	if r.SteamAppID != nil {
		gameID = *r.SteamAppID
	}
	affiliate := a.registry.BuildAffiliateURL(r.DealID, r.StoreID, gameID, "")
	affiliate = stores.AppendTrackingParams(affiliate, "gamedeals", "aggregator", "discount-api")
	storeCfg := a.registry.Resolve(r.StoreID)

	posted := time.Now().UTC()
	if r.LastChange > 0 {
		posted = time.Unix(r.LastChange, 0).UTC()
	}

	return models.CanonicalDeal{
		ID:             models.DealID(models.ProviderDiscountAPI, r.DealID),
		Title:          r.Title,
		Slug:           util.Slugify(r.Title),
		ImageURL:       r.Thumb,
		Description:    fmt.Sprintf("%s on sale at %s", r.Title, storeCfg.Name),
		OriginalPrice:  util.FormatPrice(original),
		DealPrice:      util.FormatPrice(sale),
		SavingsPercent: savings,
		AffiliateURL:   affiliate,
		RetailerID:     r.StoreID,
		RetailerName:   storeCfg.Name,
		DatePosted:     posted,
		Provider:       models.ProviderDiscountAPI,
		ProviderItemID: r.DealID,
	}, true
}
