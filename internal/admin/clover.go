package admin

import (
	"context"
	"fmt"

	"github.com/ostafen/clover"
)

// CloverStore is a DocumentStore backed by a clover database directory.
type CloverStore struct {
	db *clover.DB
}

var _ DocumentStore = (*CloverStore)(nil)

// OpenClover opens or creates the database in dir.
func OpenClover(dir string) (*CloverStore, error) {
	db, err := clover.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open clover %s: %w", dir, err)
	}
	return &CloverStore{db: db}, nil
}

// Close closes the database.
func (s *CloverStore) Close() error {
	return s.db.Close()
}

// Insert adds a document, creating the collection when needed, and returns
// its id.
func (s *CloverStore) Insert(collection string, fields map[string]any) (string, error) {
	exists, err := s.db.HasCollection(collection)
	if err != nil {
		return "", fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		if err := s.db.CreateCollection(collection); err != nil {
			return "", fmt.Errorf("create collection %s: %w", collection, err)
		}
	}

	doc := clover.NewDocument()
	for k, v := range fields {
		doc.Set(k, v)
	}
	id, err := s.db.InsertOne(collection, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

// ListIDs returns the ids of every document in collection. A missing
// collection has no documents.
func (s *CloverStore) ListIDs(_ context.Context, collection string) ([]string, error) {
	exists, err := s.db.HasCollection(collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, nil
	}

	docs, err := s.db.Query(collection).FindAll()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ObjectId())
	}
	return ids, nil
}

// Delete removes one document.
func (s *CloverStore) Delete(_ context.Context, collection, id string) error {
	return s.db.Query(collection).DeleteById(id)
}

// Count returns the number of documents in collection.
func (s *CloverStore) Count(collection string) (int, error) {
	exists, err := s.db.HasCollection(collection)
	if err != nil || !exists {
		return 0, err
	}
	return s.db.Query(collection).Count()
}
