// templates.go - Compliance templates, one per user

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ComplianceTemplate is a user's uploaded compliance checklist
type ComplianceTemplate struct {
	UserID     string    `bson:"_id" json:"userId"`
	FileName   string    `bson:"fileName" json:"fileName"`
	Content    string    `bson:"content" json:"content"`
	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

type TemplateStore interface {
	Get(ctx context.Context, userID string) (*ComplianceTemplate, error)
	Put(ctx context.Context, tpl *ComplianceTemplate) error
	Delete(ctx context.Context, userID string) error
}

type MongoTemplateStore struct {
	coll *mongo.Collection
}

func NewMongoTemplateStore(db *mongo.Database) *MongoTemplateStore {
	return &MongoTemplateStore{coll: db.Collection(templatesCollection)}
}

func (s *MongoTemplateStore) Get(ctx context.Context, userID string) (*ComplianceTemplate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var tpl ComplianceTemplate
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&tpl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template for %s: %w", userID, err)
	}
	return &tpl, nil
}

// Put replaces the user's template
func (s *MongoTemplateStore) Put(ctx context.Context, tpl *ComplianceTemplate) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := *tpl
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save template for %s: %w", doc.UserID, err)
	}
	return nil
}

func (s *MongoTemplateStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete template for %s: %w", userID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]ComplianceTemplate
}

func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]ComplianceTemplate)}
}

func (s *MemoryTemplateStore) Get(_ context.Context, userID string) (*ComplianceTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tpl, nil
}

func (s *MemoryTemplateStore) Put(_ context.Context, tpl *ComplianceTemplate) error {
	doc := *tpl
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[doc.UserID] = doc
	return nil
}

func (s *MemoryTemplateStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[userID]; !ok {
		return ErrNotFound
	}
	delete(s.templates, userID)
	return nil
}
