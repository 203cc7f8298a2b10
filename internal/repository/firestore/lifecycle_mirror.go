// Package firestore mirrors lifecycle entries into Cloud Firestore so that
// dashboards can follow documents without access to the relational store.
package firestore

import (
	"context"
	"fmt"

	gcfirestore "cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"materialflow/internal/domain"
)

// LifecycleMirror stores entries under <collection>/<document_id>/entries.
// Entry IDs sort in append order.
type LifecycleMirror struct {
	client     *gcfirestore.Client
	collection string
	logger     *zap.Logger
}

// NewClient creates a Firestore client for projectID.
func NewClient(ctx context.Context, projectID string) (*gcfirestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := gcfirestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return client, nil
}

// NewLifecycleMirror creates a mirror writing into collection.
func NewLifecycleMirror(client *gcfirestore.Client, collection string, logger *zap.Logger) *LifecycleMirror {
	if collection == "" {
		collection = "documents"
	}
	return &LifecycleMirror{client: client, collection: collection, logger: logger}
}

func (m *LifecycleMirror) entries(documentID string) *gcfirestore.CollectionRef {
	return m.client.Collection(m.collection).Doc(documentID).Collection("entries")
}

// entryID orders entries by timestamp, then by position within the batch.
func entryID(e domain.LifecycleEntry, i int) string {
	return fmt.Sprintf("%020d-%04d", e.Timestamp.UnixNano(), i)
}

// Append writes entries in one transaction and updates each document's
// current state.
func (m *LifecycleMirror) Append(ctx context.Context, entries ...domain.LifecycleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := m.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		latest := map[string]domain.LifecycleEntry{}
		for i, e := range entries {
			if err := tx.Create(m.entries(e.DocumentID).Doc(entryID(e, i)), e); err != nil {
				return err
			}
			latest[e.DocumentID] = e
		}
		for id, e := range latest {
			err := tx.Set(m.client.Collection(m.collection).Doc(id), map[string]interface{}{
				"state":     string(e.ToState),
				"updatedAt": e.Timestamp,
			}, gcfirestore.MergeAll)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("firestore.LifecycleMirror.Append: write failed", zap.Int("entries", len(entries)), zap.Error(err))
		return fmt.Errorf("mirroring lifecycle entries: %w", err)
	}
	return nil
}

// ListByDocument returns the mirrored entries of one document in append order.
func (m *LifecycleMirror) ListByDocument(ctx context.Context, documentID string) (domain.LifecycleLog, error) {
	iter := m.entries(documentID).OrderBy(gcfirestore.DocumentID, gcfirestore.Asc).Documents(ctx)
	defer iter.Stop()

	var log domain.LifecycleLog
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mirrored lifecycle of %s: %w", documentID, err)
		}
		var e domain.LifecycleEntry
		if err := snap.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decoding mirrored entry %s: %w", snap.Ref.ID, err)
		}
		log = append(log, e)
	}
	return log, nil
}
