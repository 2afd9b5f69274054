// Package store keeps the in-memory, deduplicated set of archived records
// in first-observed order.
package store

import (
	"sync"

	"twarchive/pkg/models"
)

// RecordStore is safe for concurrent use. Records are only ever added,
// and after insertion the only change allowed is appending pictures.
type RecordStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*models.Record
}

// New creates an empty store
func New() *RecordStore {
	return &RecordStore{byID: make(map[string]*models.Record)}
}

// InsertIfAbsent stores a copy of rec unless a record with the same ID is
// already present. The first writer wins; it reports whether rec was added.
func (s *RecordStore) InsertIfAbsent(rec models.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; ok {
		return false
	}
	c := rec.Clone()
	if c.Pictures == nil {
		c.Pictures = []string{}
	}
	s.byID[rec.ID] = &c
	s.order = append(s.order, rec.ID)
	return true
}

// Seed inserts records in order, skipping IDs already present, and returns
// how many were added
func (s *RecordStore) Seed(records []models.Record) int {
	added := 0
	for _, rec := range records {
		if s.InsertIfAbsent(rec) {
			added++
		}
	}
	return added
}

// Contains reports whether a record with id is present
func (s *RecordStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Get returns a copy of the record with id
func (s *RecordStore) Get(id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return models.Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of records
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// AppendMedia appends path to the pictures of the record with id.
// It returns false when the record is unknown.
func (s *RecordStore) AppendMedia(id, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return false
	}
	rec.Pictures = append(rec.Pictures, path)
	return true
}

// Snapshot returns deep copies of all records in insertion order. Later
// mutations of the store are not visible through the result.
func (s *RecordStore) Snapshot() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}
