package stores

import (
	"strings"
	"testing"
)

func TestResolve_Fallback(t *testing.T) {
	r := NewRegistry()

	cfg := r.Resolve("nonexistent-id")
	if cfg.Name != "Unknown Store" {
		t.Errorf("Resolve() name = %q, want %q", cfg.Name, "Unknown Store")
	}
	if !cfg.RequiresDealID {
		t.Error("fallback config should require a deal ID")
	}
	if cfg.IsDirectLink {
		t.Error("fallback config should not support direct links")
	}
}

func TestResolve_Known(t *testing.T) {
	r := NewRegistry()

	cfg := r.Resolve("1")
	if cfg.Name != "Steam" {
		t.Errorf("Resolve(\"1\") name = %q, want %q", cfg.Name, "Steam")
	}
	if !cfg.IsDirectLink {
		t.Error("Steam should support direct links")
	}
}

func TestBuildAffiliateURL(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name        string
		dealID      string
		retailerID  string
		gameID      string
		fallbackURL string
		want        string
	}{
		{
			name:       "Direct link with affiliate param",
			retailerID: "7",
			gameID:     "the-witcher-3",
			want:       "https://www.gog.com/game/the-witcher-3?pp=dealhawk",
		},
		{
			name:       "Direct link without affiliate param",
			retailerID: "1",
			gameID:     "620",
			want:       "https://store.steampowered.com/app/620",
		},
		{
			name:       "Direct-capable store without game ID falls back to redirect",
			dealID:     "abc123",
			retailerID: "1",
			want:       "https://www.cheapshark.com/redirect?dealID=abc123",
		},
		{
			name:       "Redirect store with deal ID",
			dealID:     "xyz",
			retailerID: "8",
			want:       "https://www.cheapshark.com/redirect?dealID=xyz",
		},
		{
			name:        "Redirect store without deal ID uses provider URL",
			retailerID:  "8",
			fallbackURL: "https://example.com/product",
			want:        "https://example.com/product",
		},
		{
			name:       "Unknown retailer with deal ID",
			dealID:     "d1",
			retailerID: "no-such-store",
			want:       "https://www.cheapshark.com/redirect?dealID=d1",
		},
		{
			name:       "Nothing supplied still yields a URL",
			retailerID: "no-such-store",
			want:       "https://www.cheapshark.com/redirect?dealID=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.BuildAffiliateURL(tt.dealID, tt.retailerID, tt.gameID, tt.fallbackURL)
			if got != tt.want {
				t.Errorf("BuildAffiliateURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildAffiliateURL_Idempotent(t *testing.T) {
	r := NewRegistry()

	first := r.BuildAffiliateURL("deal-9", "7", "cyberpunk-2077", "")
	second := r.BuildAffiliateURL("deal-9", "7", "cyberpunk-2077", "")
	if first != second {
		t.Errorf("BuildAffiliateURL() not idempotent: %q vs %q", first, second)
	}
}

func TestAppendTrackingParams(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "No existing query",
			input: "https://example.com/game",
			want:  "https://example.com/game?utm_source=gd&utm_medium=agg&utm_campaign=run",
		},
		{
			name:  "Existing query uses ampersand",
			input: "https://example.com/game?id=1",
			want:  "https://example.com/game?id=1&utm_source=gd&utm_medium=agg&utm_campaign=run",
		},
		{
			name:  "Empty URL untouched",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendTrackingParams(tt.input, "gd", "agg", "run")
			if got != tt.want {
				t.Errorf("AppendTrackingParams() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendTrackingParams_Idempotent(t *testing.T) {
	once := AppendTrackingParams("https://example.com/game", "gd", "agg", "run")
	twice := AppendTrackingParams(once, "gd", "agg", "run")
	if once != twice {
		t.Errorf("AppendTrackingParams() applied twice changed the URL: %q vs %q", once, twice)
	}
	if strings.Count(twice, "utm_source") != 1 {
		t.Errorf("utm_source appears %d times, want 1", strings.Count(twice, "utm_source"))
	}
}
