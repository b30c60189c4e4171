package stories

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/server/models"
	"github.com/google/uuid"
)

type memoryRecord struct {
	story models.Story
	seq   uint64
}

// MemoryRepository keeps stories in process memory. Insertion sequence
// stands in for created_on when ordering.
type MemoryRepository struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string]*memoryRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*memoryRecord)}
}

func (r *MemoryRepository) Create(_ context.Context, story *models.Story) (*models.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	story.CreatedOn = time.Now().UTC()
	story.VisitedLocation = slices.Clone(story.VisitedLocation)

	r.seq++
	r.records[story.ID] = &memoryRecord{story: *story, seq: r.seq}
	return story, nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, owner string) ([]*models.Story, error) {
	return r.selectWhere(owner, func(*models.Story) bool { return true }), nil
}

func (r *MemoryRepository) GetByOwner(_ context.Context, owner, id string) (*models.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.story.UserID != owner {
		return nil, common.ErrNotFound
	}
	return copyStory(&rec.story), nil
}

func (r *MemoryRepository) Update(_ context.Context, story *models.Story) (*models.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[story.ID]
	if !ok || rec.story.UserID != story.UserID {
		return nil, common.ErrNotFound
	}
	rec.story.Title = story.Title
	rec.story.Story = story.Story
	rec.story.VisitedLocation = slices.Clone(story.VisitedLocation)
	rec.story.ImageURL = story.ImageURL
	rec.story.VisitedDate = story.VisitedDate
	return copyStory(&rec.story), nil
}

func (r *MemoryRepository) Delete(_ context.Context, owner, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.story.UserID != owner {
		return "", common.ErrNotFound
	}
	delete(r.records, id)
	return rec.story.ImageURL, nil
}

func (r *MemoryRepository) SetFavourite(_ context.Context, owner, id string, favourite bool) (*models.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.story.UserID != owner {
		return nil, common.ErrNotFound
	}
	rec.story.IsFavourite = favourite
	return copyStory(&rec.story), nil
}

func (r *MemoryRepository) Search(_ context.Context, owner, query string) ([]*models.Story, error) {
	q := strings.ToLower(query)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), q) }

	return r.selectWhere(owner, func(s *models.Story) bool {
		return contains(s.Title) || contains(s.Story) || slices.ContainsFunc(s.VisitedLocation, contains)
	}), nil
}

func (r *MemoryRepository) FilterByDate(_ context.Context, owner string, from, to time.Time) ([]*models.Story, error) {
	return r.selectWhere(owner, func(s *models.Story) bool {
		return !s.VisitedDate.Before(from) && !s.VisitedDate.After(to)
	}), nil
}

func (r *MemoryRepository) CountByImage(_ context.Context, ref string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.story.ImageURL == ref {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) selectWhere(owner string, keep func(*models.Story) bool) []*models.Story {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*memoryRecord, 0)
	for _, rec := range r.records {
		if rec.story.UserID == owner && keep(&rec.story) {
			matched = append(matched, rec)
		}
	}
	slices.SortFunc(matched, func(a, b *memoryRecord) int {
		if a.story.IsFavourite != b.story.IsFavourite {
			if a.story.IsFavourite {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]*models.Story, len(matched))
	for i, rec := range matched {
		out[i] = copyStory(&rec.story)
	}
	return out
}

func copyStory(s *models.Story) *models.Story {
	c := *s
	c.VisitedLocation = slices.Clone(s.VisitedLocation)
	return &c
}
