// payments.go - Processed payment events and receipts

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PaymentEvent marks one provider event as handled. The provider and event
// id together form the document key, so a second insert is rejected.
type PaymentEvent struct {
	Provider    string    `bson:"provider" json:"provider"`
	EventID     string    `bson:"eventId" json:"eventId"`
	UserID      string    `bson:"userId" json:"userId"`
	Tier        string    `bson:"tier" json:"tier"`
	ProcessedAt time.Time `bson:"processedAt" json:"processedAt"`
}

func (e PaymentEvent) key() string {
	return e.Provider + ":" + e.EventID
}

// Receipt is the audit copy of a processed payment
type Receipt struct {
	ID         string    `bson:"_id" json:"id"`
	Provider   string    `bson:"provider" json:"provider"`
	EventID    string    `bson:"eventId" json:"eventId"`
	UserID     string    `bson:"userId" json:"userId"`
	Tier       string    `bson:"tier" json:"tier"`
	VariantID  string    `bson:"variantId,omitempty" json:"variantId,omitempty"`
	Amount     int64     `bson:"amount,omitempty" json:"amount,omitempty"`
	Currency   string    `bson:"currency,omitempty" json:"currency,omitempty"`
	ReceivedAt time.Time `bson:"receivedAt" json:"receivedAt"`
}

type PaymentStore interface {
	// MarkProcessed claims the event. It returns ErrDuplicateEvent when the
	// event was already claimed.
	MarkProcessed(ctx context.Context, ev PaymentEvent) error
	// Unmark releases a claim whose upgrade could not be applied
	Unmark(ctx context.Context, provider, eventID string) error
	SaveReceipt(ctx context.Context, r *Receipt) error
	ListReceipts(ctx context.Context, userID string) ([]Receipt, error)
}

type MongoPaymentStore struct {
	events   *mongo.Collection
	receipts *mongo.Collection
}

func NewMongoPaymentStore(db *mongo.Database) *MongoPaymentStore {
	return &MongoPaymentStore{
		events:   db.Collection(paymentEventsCollection),
		receipts: db.Collection(receiptsCollection),
	}
}

func (s *MongoPaymentStore) MarkProcessed(ctx context.Context, ev PaymentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now().UTC()
	}
	doc := bson.M{
		"_id":         ev.key(),
		"provider":    ev.Provider,
		"eventId":     ev.EventID,
		"userId":      ev.UserID,
		"tier":        ev.Tier,
		"processedAt": ev.ProcessedAt,
	}
	_, err := s.events.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("failed to record payment event %s: %w", ev.key(), err)
	}
	return nil
}

func (s *MongoPaymentStore) Unmark(ctx context.Context, provider, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := PaymentEvent{Provider: provider, EventID: eventID}.key()
	if _, err := s.events.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to release payment event %s: %w", key, err)
	}
	return nil
}

func (s *MongoPaymentStore) SaveReceipt(ctx context.Context, r *Receipt) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := *r
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	if doc.ReceivedAt.IsZero() {
		doc.ReceivedAt = time.Now().UTC()
	}
	if _, err := s.receipts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

func (s *MongoPaymentStore) ListReceipts(ctx context.Context, userID string) ([]Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "receivedAt", Value: -1}})
	cursor, err := s.receipts.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer cursor.Close(ctx)

	results := []Receipt{}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

type MemoryPaymentStore struct {
	mu       sync.Mutex
	events   map[string]PaymentEvent
	receipts []Receipt
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{events: make(map[string]PaymentEvent)}
}

func (s *MemoryPaymentStore) MarkProcessed(_ context.Context, ev PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.key()]; ok {
		return ErrDuplicateEvent
	}
	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now().UTC()
	}
	s.events[ev.key()] = ev
	return nil
}

func (s *MemoryPaymentStore) Unmark(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, PaymentEvent{Provider: provider, EventID: eventID}.key())
	return nil
}

func (s *MemoryPaymentStore) SaveReceipt(_ context.Context, r *Receipt) error {
	doc := *r
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ReceivedAt.IsZero() {
		doc.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, doc)
	return nil
}

func (s *MemoryPaymentStore) ListReceipts(_ context.Context, userID string) ([]Receipt, error) {
	s.mu.Lock()
	results := []Receipt{}
	for _, r := range s.receipts {
		if r.UserID == userID {
			results = append(results, r)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ReceivedAt.After(results[j].ReceivedAt)
	})
	return results, nil
}
