package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealhawk/gamedeals-aggregator/internal/models"
	"github.com/dealhawk/gamedeals-aggregator/internal/sources"
)

// --- Mock implementations ---

type mockAdapter struct {
	name  string
	deals []models.CanonicalDeal
	err   error
	slow  time.Duration
	calls int
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) FetchAndNormalize(ctx context.Context) ([]models.CanonicalDeal, error) {
	m.calls++
	if m.slow > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.slow):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.deals, nil
}

type mockStore struct {
	upserted []models.CanonicalDeal
	err      error
}

func (m *mockStore) UpsertDeals(_ context.Context, deals []models.CanonicalDeal) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.upserted = deals
	return "batch-1", nil
}

type mockNotifier struct {
	summaries []RunSummary
}

func (m *mockNotifier) NotifyRun(_ context.Context, s RunSummary) error {
	m.summaries = append(m.summaries, s)
	return nil
}

func testDeal(id, title string, free bool, savings int, posted time.Time) models.CanonicalDeal {
	price := "$10.00"
	if free {
		price = models.PriceFree
		savings = 100
	}
	return models.CanonicalDeal{
		ID:             id,
		Title:          title,
		Slug:           "slug-" + id,
		ImageURL:       "https://img.example.com/" + id + ".jpg",
		OriginalPrice:  "$20.00",
		DealPrice:      price,
		SavingsPercent: savings,
		AffiliateURL:   "https://example.com/" + id,
		DatePosted:     posted,
		Provider:       models.ProviderDiscountAPI,
		ProviderItemID: id,
	}
}

// --- Tests ---

func TestRun_RankingOrder(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	today := time.Now()

	a := testDeal("a", "Free Game", true, 0, yesterday)
	b := testDeal("b", "Half Off", false, 50, today)
	c := testDeal("c", "Eighty Off", false, 80, today)

	store := &mockStore{}
	agg := New([]sources.Adapter{
		&mockAdapter{name: "one", deals: []models.CanonicalDeal{b, a, c}},
	}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := make([]string, len(store.upserted))
	for i, d := range store.upserted {
		got[i] = d.ID
	}
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking order = %v, want %v", got, want)
		}
	}
}

func TestRun_LastWinsDedup(t *testing.T) {
	first := testDeal("dup", "First Version", false, 40, time.Now())
	second := testDeal("dup", "Second Version", false, 60, time.Now())

	store := &mockStore{}
	agg := New([]sources.Adapter{
		&mockAdapter{name: "one", deals: []models.CanonicalDeal{first, second}},
	}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d deals, want 1", len(store.upserted))
	}
	if store.upserted[0].Title != "Second Version" {
		t.Errorf("survivor = %q, want the last occurrence", store.upserted[0].Title)
	}
}

func TestRun_FailingAdapterDoesNotBlockOthers(t *testing.T) {
	good := testDeal("ok", "Survivor", false, 50, time.Now())

	failing := &mockAdapter{name: "bad", err: errors.New("connection refused")}
	working := &mockAdapter{name: "good", deals: []models.CanonicalDeal{good}}

	store := &mockStore{}
	agg := New([]sources.Adapter{failing, working}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil despite failing source", err)
	}
	if len(store.upserted) != 1 || store.upserted[0].ID != "ok" {
		t.Errorf("upserted = %v, want the working source's deal", store.upserted)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("adapter calls = %d/%d, want 1/1", failing.calls, working.calls)
	}
}

func TestRun_QualityFilter(t *testing.T) {
	noImage := testDeal("no-img", "No Image", false, 90, time.Now())
	noImage.ImageURL = ""
	lowSavings := testDeal("low", "Low Savings", false, 5, time.Now())
	keeper := testDeal("keep", "Keeper", false, 30, time.Now())

	store := &mockStore{}
	agg := New([]sources.Adapter{
		&mockAdapter{name: "one", deals: []models.CanonicalDeal{noImage, lowSavings, keeper}},
	}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.upserted) != 1 || store.upserted[0].ID != "keep" {
		t.Errorf("upserted = %v, want only the qualifying deal", store.upserted)
	}
}

func TestRun_LimitTruncates(t *testing.T) {
	var deals []models.CanonicalDeal
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		deals = append(deals, testDeal(id, "Deal "+id, false, 50, time.Now()))
	}

	store := &mockStore{}
	agg := New([]sources.Adapter{&mockAdapter{name: "one", deals: deals}}, store, nil, 20, 2)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.upserted) != 2 {
		t.Errorf("upserted %d deals, want 2 after truncation", len(store.upserted))
	}
}

func TestRun_SlugCollisionSuffixed(t *testing.T) {
	one := testDeal("id-one", "Same Name", false, 50, time.Now())
	two := testDeal("id-two", "Same Name", false, 40, time.Now())
	one.Slug = "same-name"
	two.Slug = "same-name"

	store := &mockStore{}
	agg := New([]sources.Adapter{
		&mockAdapter{name: "one", deals: []models.CanonicalDeal{one, two}},
	}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("upserted %d deals, want 2", len(store.upserted))
	}
	slugs := map[string]bool{}
	for _, d := range store.upserted {
		if slugs[d.Slug] {
			t.Fatalf("duplicate slug %q in output", d.Slug)
		}
		slugs[d.Slug] = true
	}
	if !slugs["same-name"] || !slugs["same-name-id-two"] {
		t.Errorf("slugs = %v, want original plus id-suffixed", slugs)
	}
}

func TestRun_SlugCollisionAcrossProviders(t *testing.T) {
	// Same title and same native ID from two providers: the id-suffixed
	// slug collides too and needs a counter.
	one := testDeal("discount-api-77", "Same Name", false, 50, time.Now())
	two := testDeal("storefront-rss-77", "Same Name", false, 40, time.Now())
	three := testDeal("vendor-promotions-77", "Same Name", false, 30, time.Now())
	for _, d := range []*models.CanonicalDeal{&one, &two, &three} {
		d.Slug = "same-name"
		d.ProviderItemID = "77"
	}

	store := &mockStore{}
	agg := New([]sources.Adapter{
		&mockAdapter{name: "one", deals: []models.CanonicalDeal{one, two, three}},
	}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.upserted) != 3 {
		t.Fatalf("upserted %d deals, want 3", len(store.upserted))
	}
	slugs := map[string]bool{}
	for _, d := range store.upserted {
		if slugs[d.Slug] {
			t.Fatalf("duplicate slug %q in output", d.Slug)
		}
		slugs[d.Slug] = true
	}
	for _, want := range []string{"same-name", "same-name-77", "same-name-77-2"} {
		if !slugs[want] {
			t.Errorf("slugs = %v, missing %q", slugs, want)
		}
	}
}

func TestRun_PersistFailureSurfaces(t *testing.T) {
	deal := testDeal("d", "Deal", false, 50, time.Now())
	store := &mockStore{err: errors.New("store unavailable")}
	agg := New([]sources.Adapter{&mockAdapter{name: "one", deals: []models.CanonicalDeal{deal}}}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want persistence failure surfaced")
	}
}

func TestRun_EmptyRunSkipsPersistence(t *testing.T) {
	store := &mockStore{err: errors.New("should not be called")}
	agg := New([]sources.Adapter{&mockAdapter{name: "one"}}, store, nil, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil for empty run", err)
	}
}

func TestRun_NotifierReceivesSummary(t *testing.T) {
	deal := testDeal("d", "Deal", false, 50, time.Now())
	store := &mockStore{}
	n := &mockNotifier{}
	agg := New([]sources.Adapter{&mockAdapter{name: "src", deals: []models.CanonicalDeal{deal}}}, store, n, 20, 100)

	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(n.summaries) != 1 {
		t.Fatalf("notifier received %d summaries, want 1", len(n.summaries))
	}
	s := n.summaries[0]
	if s.BatchID != "batch-1" || s.Kept != 1 || s.SourceCounts["src"] != 1 {
		t.Errorf("summary = %+v, want batch-1/1 kept/1 from src", s)
	}
}
