package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voxareflect/internal/models"
)

// MemoryStore keeps documents in process. Each Load and Save holds the store mutex
// for exactly that one call and works on a deep copy.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	vers map[string]int64
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		vers: make(map[string]int64),
		now:  time.Now,
	}
}

func (s *MemoryStore) Load(ctx context.Context, username string) (*models.UserDocument, error) {
	s.mu.Lock()
	data, ok := s.docs[username]
	s.mu.Unlock()

	if !ok {
		return emptyDocument(username), nil
	}
	var doc models.UserDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document for %s: %w", username, err)
	}
	return &doc, nil
}

func (s *MemoryStore) Save(ctx context.Context, doc *models.UserDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vers[doc.Username] != doc.Version {
		return ErrVersionConflict
	}

	next := *doc
	next.Version = doc.Version + 1
	next.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode document for %s: %w", doc.Username, err)
	}

	s.docs[doc.Username] = data
	s.vers[doc.Username] = next.Version
	doc.Version = next.Version
	doc.UpdatedAt = next.UpdatedAt
	return nil
}
