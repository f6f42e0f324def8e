package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ProjectID         string
	Port              string
	CronSecret        string
	DiscordWebhookURL string

	DiscountAPIBaseURL  string
	DiscountStoreFilter string
	StorefrontRSSURL    string
	VendorPromotionsURL string
	MinSavingsPercent   int
	MaxDeals            int
	MaxPriceDollars     int
	MinSteamRating      int
	FetchTimeout        time.Duration
	KeepDuration        time.Duration
}

func Load() (*Config, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	cronSecret := os.Getenv("CRON_SECRET")
	if cronSecret == "" {
		slog.Warn("CRON_SECRET not set, the scheduled trigger endpoint will reject all requests")
	}

	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if webhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, run summaries will be skipped")
	}

	minSavings, err := intEnv("MIN_SAVINGS_PERCENT", 20)
	if err != nil {
		return nil, err
	}
	maxDeals, err := intEnv("MAX_DEALS", 100)
	if err != nil {
		return nil, err
	}
	maxPrice, err := intEnv("MAX_PRICE_DOLLARS", 30)
	if err != nil {
		return nil, err
	}
	minRating, err := intEnv("MIN_STEAM_RATING", 60)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := durationEnv("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	keepDuration, err := durationEnv("KEEP_DURATION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		ProjectID:           projectID,
		Port:                port,
		CronSecret:          cronSecret,
		DiscordWebhookURL:   webhookURL,
		DiscountAPIBaseURL:  stringEnv("DISCOUNT_API_URL", "https://www.cheapshark.com/api/1.0/deals"),
		DiscountStoreFilter: os.Getenv("DISCOUNT_STORE_FILTER"),
		StorefrontRSSURL:    stringEnv("STOREFRONT_RSS_URL", "https://www.gog.com/rss"),
		VendorPromotionsURL: stringEnv("VENDOR_PROMOTIONS_URL", "https://store-site-backend-static.ak.epicgames.com/freeGamesPromotions"),
		MinSavingsPercent:   minSavings,
		MaxDeals:            maxDeals,
		MaxPriceDollars:     maxPrice,
		MinSteamRating:      minRating,
		FetchTimeout:        fetchTimeout,
		KeepDuration:        keepDuration,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
