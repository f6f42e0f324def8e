// Package sources contains one adapter per deal provider. Each adapter
// fetches its provider's native payload and maps it to canonical deals.
// Adapters degrade to empty results on provider failure so one broken
// source never blocks the rest of a run.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/util"
)

// Adapter is the uniform capability every provider adapter exposes.
type Adapter interface {
	Name() string
	FetchAndNormalize(ctx context.Context) ([]models.CanonicalDeal, error)
}

const (
	fetchMaxRetries = 2
	fetchRetryDelay = 500 * time.Millisecond
	userAgent       = "gamedeals-aggregator/1.0"
)

// fetcher is the HTTP client shared by all adapters. Outbound requests are
// rate limited so a run never bursts against a provider.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newFetcher(timeout time.Duration) *fetcher {
	return &fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// get fetches a URL with retry and returns the response body.
// Non-2xx statuses count as failures and are retried.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := util.RetryWithBackoff(ctx, fetchMaxRetries, fetchRetryDelay, func(attempt int) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
