package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twarchive/pkg/models"
)

func rec(id string) models.Record {
	return models.Record{ID: id, Text: "post " + id}
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	s := New()

	assert.True(t, s.InsertIfAbsent(rec("1")))
	assert.False(t, s.InsertIfAbsent(models.Record{ID: "1", Text: "different text"}))

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "post 1", got.Text, "first writer wins")
}

func TestSnapshotPreservesFirstObservedOrder(t *testing.T) {
	s := New()

	// Cycle one returns newest first
	for _, id := range []string{"30", "20", "10"} {
		s.InsertIfAbsent(rec(id))
	}
	// Cycle two re-observes 30 and 20 and brings 40
	for _, id := range []string{"40", "30", "20"} {
		s.InsertIfAbsent(rec(id))
	}

	assert.Equal(t, []string{"30", "20", "10", "40"}, ids(s.Snapshot()))
}

func TestAppendMediaIsMonotonic(t *testing.T) {
	s := New()
	s.InsertIfAbsent(rec("1"))

	snap := s.Snapshot()
	assert.Empty(t, snap[0].Pictures)
	assert.NotNil(t, snap[0].Pictures)

	assert.True(t, s.AppendMedia("1", "tweet_images/tweet_1_image_0.jpg"))
	assert.True(t, s.AppendMedia("1", "tweet_images/tweet_1_image_1.jpg"))
	assert.False(t, s.AppendMedia("missing", "x.jpg"))

	got, _ := s.Get("1")
	assert.Equal(t, []string{
		"tweet_images/tweet_1_image_0.jpg",
		"tweet_images/tweet_1_image_1.jpg",
	}, got.Pictures)

	// Earlier snapshots are isolated from later appends
	assert.Empty(t, snap[0].Pictures)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New()
	s.InsertIfAbsent(models.Record{ID: "1", Pictures: []string{"a.jpg"}})

	snap := s.Snapshot()
	snap[0].Pictures[0] = "mutated.jpg"

	got, _ := s.Get("1")
	assert.Equal(t, []string{"a.jpg"}, got.Pictures)
}

func TestInsertStoresCopy(t *testing.T) {
	s := New()
	r := models.Record{ID: "1", Pictures: []string{"a.jpg"}}
	s.InsertIfAbsent(r)
	r.Pictures[0] = "mutated.jpg"

	got, _ := s.Get("1")
	assert.Equal(t, "a.jpg", got.Pictures[0])
}

func TestSeed(t *testing.T) {
	s := New()
	s.InsertIfAbsent(rec("2"))

	added := s.Seed([]models.Record{rec("1"), rec("2"), rec("3")})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"2", "1", "3"}, ids(s.Snapshot()))
	assert.True(t, s.Contains("3"))
	assert.False(t, s.Contains("4"))
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.InsertIfAbsent(models.Record{ID: "same", Text: fmt.Sprint(i)}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			s.AppendMedia("same", fmt.Sprintf("img_%d.jpg", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}
