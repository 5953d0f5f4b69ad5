// analyses.go - Persisted analysis results

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/clauses"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Analysis record statuses
const (
	StatusComplete = "complete" // structured result
	StatusError    = "error"    // raw text kept with a parse error marker
)

// NewAnalysisID mints a record id up front so a retried Save writes the same
// document.
func NewAnalysisID() string {
	return primitive.NewObjectID().Hex()
}

// AnalysisRecord is one stored analysis. Analysis holds either the parsed
// structured object or the fallback {raw_analysis, error_message} pair.
type AnalysisRecord struct {
	ID         string                 `bson:"_id" json:"id"`
	UserID     string                 `bson:"userId" json:"userId"`
	FileName   string                 `bson:"fileName,omitempty" json:"fileName,omitempty"`
	Kind       string                 `bson:"kind" json:"kind"` // "text" or "image"
	Method     string                 `bson:"method,omitempty" json:"method,omitempty"`
	Status     string                 `bson:"status" json:"status"`
	Structured bool                   `bson:"structured" json:"structured"`
	Analysis   map[string]interface{} `bson:"analysis" json:"analysis"`
	TextHash   string                 `bson:"textHash,omitempty" json:"textHash,omitempty"`
	Clauses    []clauses.Match        `bson:"clauses,omitempty" json:"clauses,omitempty"`
	CreatedAt  time.Time              `bson:"createdAt" json:"createdAt"`
}

// AnalysisStore persists analysis records. Reads and deletes are scoped to
// the owner: another user's record yields ErrForbidden.
type AnalysisStore interface {
	// Save writes rec; saving the same ID again leaves a single document
	Save(ctx context.Context, rec *AnalysisRecord) (string, error)
	Get(ctx context.Context, id, userID string) (*AnalysisRecord, error)
	ListByOwner(ctx context.Context, userID string, limit int) ([]AnalysisRecord, error)
	Delete(ctx context.Context, id, userID string) error
}

// MongoAnalysisStore keeps records in the analyses collection
type MongoAnalysisStore struct {
	coll *mongo.Collection
}

func NewMongoAnalysisStore(db *mongo.Database) *MongoAnalysisStore {
	return &MongoAnalysisStore{coll: db.Collection(analysesCollection)}
}

func (s *MongoAnalysisStore) Save(ctx context.Context, rec *AnalysisRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := *rec
	if doc.ID == "" {
		doc.ID = NewAnalysisID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		// an earlier attempt landed but its ack was lost
		return doc.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to save analysis: %w", err)
	}
	return doc.ID, nil
}

func (s *MongoAnalysisStore) Get(ctx context.Context, id, userID string) (*AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec AnalysisRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}
	if rec.UserID != userID {
		return nil, ErrForbidden
	}
	return &rec, nil
}

func (s *MongoAnalysisStore) ListByOwner(ctx context.Context, userID string, limit int) ([]AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer cursor.Close(ctx)

	results := []AnalysisRecord{}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *MongoAnalysisStore) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryAnalysisStore is the in-process AnalysisStore
type MemoryAnalysisStore struct {
	mu      sync.RWMutex
	records map[string]AnalysisRecord
}

func NewMemoryAnalysisStore() *MemoryAnalysisStore {
	return &MemoryAnalysisStore{records: make(map[string]AnalysisRecord)}
}

func (s *MemoryAnalysisStore) Save(_ context.Context, rec *AnalysisRecord) (string, error) {
	doc := *rec
	if doc.ID == "" {
		doc.ID = NewAnalysisID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[doc.ID] = doc
	return doc.ID, nil
}

func (s *MemoryAnalysisStore) Get(_ context.Context, id, userID string) (*AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.UserID != userID {
		return nil, ErrForbidden
	}
	return &rec, nil
}

func (s *MemoryAnalysisStore) ListByOwner(_ context.Context, userID string, limit int) ([]AnalysisRecord, error) {
	s.mu.RLock()
	results := []AnalysisRecord{}
	for _, rec := range s.records {
		if rec.UserID == userID {
			results = append(results, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryAnalysisStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.UserID != userID {
		return ErrForbidden
	}
	delete(s.records, id)
	return nil
}
