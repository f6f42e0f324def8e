// Package stores holds the static retailer registry and the affiliate-link
// resolution rules built on top of it.
package stores

import (
	"strings"
)

// StoreConfig describes one retailer's linking rules.
type StoreConfig struct {
	Name string
	// URLTemplate contains a "{gameId}" placeholder when IsDirectLink is set.
	URLTemplate    string
	RequiresDealID bool
	RequiresGameID bool
	IsDirectLink   bool
	// Affiliate query parameter appended to direct links, e.g. "aff=dealhawk".
	AffiliateParam string
	AffiliateValue string
}

const gameIDPlaceholder = "{gameId}"

// redirectURL is the generic retailer-agnostic redirect, always valid
// given only a deal identifier.
const redirectURL = "https://www.cheapshark.com/redirect?dealID="

// fallback is returned for unknown retailers so resolution never fails.
var fallback = StoreConfig{
	Name:           "Unknown Store",
	URLTemplate:    redirectURL + "{dealId}",
	RequiresDealID: true,
	IsDirectLink:   false,
}

// Registry maps retailer identifiers to their static configuration.
// It is passed explicitly to every component that resolves links; there is
// no package-level lookup.
type Registry struct {
	configs map[string]StoreConfig
}

// NewRegistry returns a registry preloaded with the known retailers.
func NewRegistry() *Registry {
	return &Registry{configs: map[string]StoreConfig{
		"1": {
			Name:           "Steam",
			URLTemplate:    "https://store.steampowered.com/app/" + gameIDPlaceholder,
			RequiresGameID: true,
			IsDirectLink:   true,
		},
		"7": {
			Name:           "GOG",
			URLTemplate:    "https://www.gog.com/game/" + gameIDPlaceholder,
			RequiresGameID: true,
			IsDirectLink:   true,
			AffiliateParam: "pp",
			AffiliateValue: "dealhawk",
		},
		"8": {
			Name:           "Origin",
			URLTemplate:    redirectURL + "{dealId}",
			RequiresDealID: true,
		},
		"11": {
			Name:           "Humble Store",
			URLTemplate:    "https://www.humblebundle.com/store/" + gameIDPlaceholder,
			RequiresGameID: true,
			IsDirectLink:   true,
			AffiliateParam: "partner",
			AffiliateValue: "dealhawk",
		},
		"13": {
			Name:           "Uplay",
			URLTemplate:    redirectURL + "{dealId}",
			RequiresDealID: true,
		},
		"15": {
			Name:           "Fanatical",
			URLTemplate:    "https://www.fanatical.com/en/game/" + gameIDPlaceholder,
			RequiresGameID: true,
			IsDirectLink:   true,
			AffiliateParam: "ref",
			AffiliateValue: "dealhawk",
		},
		"25": {
			Name:           "Epic Games Store",
			URLTemplate:    "https://store.epicgames.com/p/" + gameIDPlaceholder,
			RequiresGameID: true,
			IsDirectLink:   true,
			AffiliateParam: "epic_affiliate",
			AffiliateValue: "dealhawk",
		},
		"27": {
			Name:           "Gamesplanet",
			URLTemplate:    redirectURL + "{dealId}",
			RequiresDealID: true,
		},
	}}
}

// Resolve returns the configuration for a retailer, or the default
// fallback for unknown identifiers. It never fails.
func (r *Registry) Resolve(retailerID string) StoreConfig {
	if cfg, ok := r.configs[retailerID]; ok {
		return cfg
	}
	return fallback
}

// RedirectURL builds the generic retailer-agnostic redirect for a deal.
func RedirectURL(dealID string) string {
	return redirectURL + dealID
}

// BuildAffiliateURL resolves the monetizable outbound link for a deal.
// Direct deep links are only built when the retailer supports them AND a
// game identifier is available; every missing precondition falls through
// to the generic redirect, which is valid with a deal ID alone.
func (r *Registry) BuildAffiliateURL(dealID, retailerID, gameID, fallbackURL string) string {
	cfg := r.Resolve(retailerID)

	if (cfg.RequiresDealID && dealID == "") || (cfg.RequiresGameID && gameID == "") {
		return redirectOrFallback(dealID, fallbackURL)
	}

	if cfg.IsDirectLink && gameID != "" {
		u := strings.ReplaceAll(cfg.URLTemplate, gameIDPlaceholder, gameID)
		if cfg.AffiliateParam != "" {
			sep := "?"
			if strings.Contains(u, "?") {
				sep = "&"
			}
			u += sep + cfg.AffiliateParam + "=" + cfg.AffiliateValue
		}
		return u
	}

	return redirectOrFallback(dealID, fallbackURL)
}

// redirectOrFallback prefers the generic redirect when a deal ID exists,
// then the provider-supplied URL, then a bare redirect as a last resort.
func redirectOrFallback(dealID, fallbackURL string) string {
	if dealID != "" {
		return RedirectURL(dealID)
	}
	if fallbackURL != "" {
		return fallbackURL
	}
	return RedirectURL("")
}

// AppendTrackingParams adds utm attribution parameters to a URL.
// It is a pure string operation and applying it twice is harmless only if
// the caller checks; here we skip URLs that already carry a utm_source.
func AppendTrackingParams(rawURL, source, medium, campaign string) string {
	if rawURL == "" || strings.Contains(rawURL, "utm_source=") {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "utm_source=" + source + "&utm_medium=" + medium + "&utm_campaign=" + campaign
}
