// Package storage is the persistence gateway: it owns every Firestore
// interaction and presents the document store as batch-upsert plus query.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dealhawk/gamedeals-aggregator/internal/models"
)

const (
	dealsCollection = "deals"
	stateCollection = "pipeline_state"
	stateDocumentID = "last_run"
)

// RunState records the outcome of the most recent successful run.
type RunState struct {
	LastRunAt   time.Time `firestore:"lastRunAt"`
	LastBatchID string    `firestore:"lastBatchID"`
	DealCount   int       `firestore:"dealCount"`
}

type Client struct {
	client       *firestore.Client
	keepDuration time.Duration
}

func New(ctx context.Context, projectID string, keepDuration time.Duration) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client, keepDuration: keepDuration}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// UpsertDeals writes the whole candidate set as one batch with merge
// semantics and returns the batch identifier shared by all documents.
// Every document gets a lastUpdated timestamp and an expiresAt removal
// horizon, independent of the deal's own promotional expiry. Any write
// failure fails the whole call; the caller retries the entire cycle.
func (c *Client) UpsertDeals(ctx context.Context, deals []models.CanonicalDeal) (string, error) {
	if len(deals) == 0 {
		return "", models.ErrNoDeals
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	expiresAt := now.Add(c.keepDuration)

	bulkWriter := c.client.BulkWriter(ctx)
	collectionRef := c.client.Collection(dealsCollection)

	jobs := make([]*firestore.BulkWriterJob, 0, len(deals))
	for i := range deals {
		docID := deals[i].ID
		if docID == "" {
			// Guarantees idempotent re-delivery still gets a usable key.
			docID = fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])
		}
		doc := dealDocument(&deals[i], batchID, now, expiresAt)
		job, err := bulkWriter.Set(collectionRef.Doc(docID), doc, firestore.MergeAll)
		if err != nil {
			bulkWriter.End()
			return "", fmt.Errorf("queueing upsert for %s: %w", docID, err)
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return "", fmt.Errorf("batch %s failed: %w", batchID, err)
		}
	}

	if err := c.SetRunState(ctx, RunState{LastRunAt: now, LastBatchID: batchID, DealCount: len(deals)}); err != nil {
		slog.Warn("Failed to record run state", "error", err)
	}

	slog.Info("Upserted deal batch", "batch", batchID, "count", len(deals))
	return batchID, nil
}

// dealDocument flattens a deal into the map form written to Firestore.
// Maps rather than structs so merge semantics only touch present fields.
func dealDocument(d *models.CanonicalDeal, batchID string, now, expiresAt time.Time) map[string]interface{} {
	doc := map[string]interface{}{
		"title":          d.Title,
		"slug":           d.Slug,
		"originalPrice":  d.OriginalPrice,
		"dealPrice":      d.DealPrice,
		"savingsPercent": d.SavingsPercent,
		"affiliateUrl":   d.AffiliateURL,
		"retailerId":     d.RetailerID,
		"retailerName":   d.RetailerName,
		"datePosted":     d.DatePosted,
		"provider":       string(d.Provider),
		"providerItemId": d.ProviderItemID,
		"isUpcoming":     d.IsUpcoming,
		"lastUpdated":    now,
		"batchID":        batchID,
		"expiresAt":      expiresAt,
	}
	if d.ImageURL != "" {
		doc["imageUrl"] = d.ImageURL
	}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if !d.ExpiryDate.IsZero() {
		doc["expiryDate"] = d.ExpiryDate
	}
	if len(d.Categories) > 0 {
		doc["categories"] = d.Categories
	}
	return doc
}

// dealActiveAt reports whether a stored deal is still logically live.
// The removal horizon keeps documents around well past their own
// promotional expiry, so a non-zero expiryDate in the past makes the
// deal stale even though TTL has not pruned it yet. A zero expiryDate
// means the deal has no fixed end.
func dealActiveAt(d *models.CanonicalDeal, now time.Time) bool {
	return d.ExpiryDate.IsZero() || d.ExpiryDate.After(now)
}

// GetActiveDeals returns stored deals whose removal horizon has not passed
// and whose own promotional window is still open, newest first, capped at
// limit. Firestore allows the range filter on one field only, so the
// expiryDate check runs client-side after decode.
func (c *Client) GetActiveDeals(ctx context.Context, limit int) ([]models.CanonicalDeal, error) {
	now := time.Now().UTC()
	iter := c.client.Collection(dealsCollection).
		Where("expiresAt", ">", now).
		OrderBy("expiresAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var deals []models.CanonicalDeal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating deals: %w", err)
		}
		var deal models.CanonicalDeal
		if err := doc.DataTo(&deal); err != nil {
			slog.Warn("Skipping undecodable deal document", "id", doc.Ref.ID, "error", err)
			continue
		}
		if !dealActiveAt(&deal, now) {
			continue
		}
		deal.ID = doc.Ref.ID
		deals = append(deals, deal)
	}
	return deals, nil
}

// GetRunState reads the last-run marker. A missing document (first run)
// returns a zero state, not an error.
func (c *Client) GetRunState(ctx context.Context) (RunState, error) {
	doc, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return RunState{}, nil
		}
		return RunState{}, fmt.Errorf("reading run state: %w", err)
	}
	var state RunState
	if err := doc.DataTo(&state); err != nil {
		return RunState{}, fmt.Errorf("decoding run state: %w", err)
	}
	return state, nil
}

// SetRunState records a successful run.
func (c *Client) SetRunState(ctx context.Context, state RunState) error {
	_, err := c.client.Collection(stateCollection).Doc(stateDocumentID).Set(ctx, state)
	if err != nil {
		return fmt.Errorf("writing run state: %w", err)
	}
	return nil
}
