// Package aggregator orchestrates one pipeline run: fan out to the source
// adapters, merge and deduplicate their output, filter and rank it, and
// hand the final set to the persistence gateway.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/sources"
	"github.com/dealhawk/gamedeals-aggregator/internal/util"
	"github.com/dealhawk/gamedeals-aggregator/internal/validator"
)

// DealStore abstracts the persistence gateway.
type DealStore interface {
	UpsertDeals(ctx context.Context, deals []models.CanonicalDeal) (string, error)
}

// RunNotifier receives a summary after each successful run.
type RunNotifier interface {
	NotifyRun(ctx context.Context, summary RunSummary) error
}

// RunSummary describes one completed aggregation run.
type RunSummary struct {
	BatchID      string
	SourceCounts map[string]int
	Merged       int
	Kept         int
}

type Aggregator struct {
	adapters   []sources.Adapter
	store      DealStore
	notifier   RunNotifier
	validate   *validator.Validator
	minSavings int
	maxDeals   int
}

func New(adapters []sources.Adapter, store DealStore, notifier RunNotifier, minSavings, maxDeals int) *Aggregator {
	return &Aggregator{
		adapters:   adapters,
		store:      store,
		notifier:   notifier,
		validate:   validator.New(),
		minSavings: minSavings,
		maxDeals:   maxDeals,
	}
}

// Run executes one full aggregation-and-persist cycle.
func (a *Aggregator) Run(ctx context.Context) error {
	results, counts := a.collect(ctx)
	merged := dedupe(results)
	kept := a.filterAndRank(merged)
	if len(kept) > a.maxDeals {
		kept = kept[:a.maxDeals]
	}
	resolveSlugCollisions(kept)

	if len(kept) == 0 {
		slog.Warn("Aggregation produced no deals, nothing to persist")
		return nil
	}

	batchID, err := a.store.UpsertDeals(ctx, kept)
	if err != nil {
		return fmt.Errorf("persisting %d deals: %w", len(kept), err)
	}
	slog.Info("Aggregation run complete", "merged", len(merged), "kept", len(kept), "batch", batchID)

	if a.notifier != nil {
		summary := RunSummary{BatchID: batchID, SourceCounts: counts, Merged: len(merged), Kept: len(kept)}
		if err := a.notifier.NotifyRun(ctx, summary); err != nil {
			slog.Warn("Run summary notification failed", "error", err)
		}
	}
	return nil
}

// collect runs every adapter concurrently. A failing adapter contributes an
// empty slice; it never aborts the run or the other adapters.
func (a *Aggregator) collect(ctx context.Context) ([]models.CanonicalDeal, map[string]int) {
	results := make([][]models.CanonicalDeal, len(a.adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range a.adapters {
		g.Go(func() error {
			deals, err := adapter.FetchAndNormalize(gctx)
			if err != nil {
				slog.Warn("Source failed, continuing without it", "source", adapter.Name(), "error", err)
				return nil
			}
			slog.Info("Source fetched", "source", adapter.Name(), "count", len(deals))
			results[i] = deals
			return nil
		})
	}
	// Adapters swallow their own errors, so Wait only reports context cancellation.
	_ = g.Wait()

	counts := make(map[string]int, len(a.adapters))
	var all []models.CanonicalDeal
	for i, adapter := range a.adapters {
		counts[adapter.Name()] = len(results[i])
		all = append(all, results[i]...)
	}
	return all, counts
}

// dedupe keeps the last occurrence of each canonical ID, preserving the
// concatenation order of the sources otherwise.
func dedupe(deals []models.CanonicalDeal) []models.CanonicalDeal {
	seen := make(map[string]int, len(deals))
	out := make([]models.CanonicalDeal, 0, len(deals))
	for _, d := range deals {
		if idx, ok := seen[d.ID]; ok {
			out[idx] = d
			continue
		}
		seen[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// filterAndRank drops deals that fail the quality bar or validation, then
// orders the rest: free first, then savings descending, then newest.
func (a *Aggregator) filterAndRank(deals []models.CanonicalDeal) []models.CanonicalDeal {
	kept := make([]models.CanonicalDeal, 0, len(deals))
	for _, d := range deals {
		if d.ImageURL == "" {
			continue
		}
		if !d.IsFree() && d.SavingsPercent < a.minSavings {
			continue
		}
		if err := a.validate.ValidateStruct(d); err != nil {
			slog.Warn("Dropping invalid deal", "id", d.ID, "error", err)
			continue
		}
		kept = append(kept, d)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		di, dj := kept[i], kept[j]
		if di.IsFree() != dj.IsFree() {
			return di.IsFree()
		}
		if di.SavingsPercent != dj.SavingsPercent {
			return di.SavingsPercent > dj.SavingsPercent
		}
		return di.DatePosted.After(dj.DatePosted)
	})
	return kept
}

// resolveSlugCollisions suffixes the provider-native ID onto any slug that
// repeats within the run, so slugs stay unique per batch.
func resolveSlugCollisions(deals []models.CanonicalDeal) {
	seen := make(map[string]bool, len(deals))
	for i := range deals {
		slug := deals[i].Slug
		if seen[slug] {
			// The suffixed form can itself collide when two providers share
			// a native ID, so keep counting until the slug is fresh.
			base := slug + "-" + util.Slugify(deals[i].ProviderItemID)
			slug = base
			for n := 2; seen[slug]; n++ {
				slug = fmt.Sprintf("%s-%d", base, n)
			}
			deals[i].Slug = slug
		}
		seen[slug] = true
	}
}
