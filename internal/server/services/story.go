package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/assets"
	"github.com/dmitrijs2005/storykeeper/internal/server/models"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
)

// StoryInput is the client-editable part of a story. VisitedDate is the raw
// epoch-millisecond value as received.
type StoryInput struct {
	Title           string
	Story           string
	VisitedLocation models.Locations
	ImageURL        string
	VisitedDate     string
}

// StoryService implements owner-scoped story operations.
type StoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	assets      *assets.Manager
}

func NewStoryService(db *sql.DB, m repomanager.RepositoryManager, a *assets.Manager) *StoryService {
	return &StoryService{db: db, repomanager: m, assets: a}
}

// Dates must render as RFC 3339, which only covers years 1 to 9999.
var (
	minDateMillis = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxDateMillis = time.Date(9999, time.December, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli()
)

func parseMillis(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, common.Invalid("%s is required", field)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, common.Invalid("%s must be an epoch timestamp in milliseconds", field)
	}
	if ms < minDateMillis || ms > maxDateMillis {
		return time.Time{}, common.Invalid("%s is out of range", field)
	}
	return models.DateFromMillis(ms), nil
}

// build validates in and maps it onto a story. imageRequired is false on
// edit, where a missing image falls back to the placeholder.
func (s *StoryService) build(in StoryInput, imageRequired bool) (*models.Story, error) {
	st := &models.Story{
		Title:           strings.TrimSpace(in.Title),
		Story:           strings.TrimSpace(in.Story),
		VisitedLocation: in.VisitedLocation.Clean(),
		ImageURL:        strings.TrimSpace(in.ImageURL),
	}

	switch {
	case st.Title == "":
		return nil, common.Invalid("title is required")
	case st.Story == "":
		return nil, common.Invalid("story is required")
	case len(st.VisitedLocation) == 0:
		return nil, common.Invalid("visitedLocation is required")
	}

	if st.ImageURL == "" {
		if imageRequired {
			return nil, common.Invalid("imageUrl is required")
		}
		st.ImageURL = s.assets.Placeholder()
	}
	if ref, ok := s.assets.Canonical(st.ImageURL); ok {
		st.ImageURL = ref
	}

	d, err := parseMillis("visitedDate", in.VisitedDate)
	if err != nil {
		return nil, err
	}
	st.VisitedDate = d
	return st, nil
}

func (s *StoryService) Add(ctx context.Context, owner string, in StoryInput) (*models.Story, error) {
	st, err := s.build(in, true)
	if err != nil {
		return nil, err
	}
	st.UserID = owner

	created, err := s.repomanager.Stories(s.db).Create(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("error creating story: %w", err)
	}
	return created, nil
}

func (s *StoryService) List(ctx context.Context, owner string) ([]*models.Story, error) {
	return s.repomanager.Stories(s.db).ListByOwner(ctx, owner)
}

// Edit replaces the editable fields of the owner's story id. The favourite
// flag and creation time are untouched.
func (s *StoryService) Edit(ctx context.Context, owner, id string, in StoryInput) (*models.Story, error) {
	st, err := s.build(in, false)
	if err != nil {
		return nil, err
	}
	st.ID = id
	st.UserID = owner

	return s.repomanager.Stories(s.db).Update(ctx, st)
}

// Delete removes the story and then releases its image unless another
// story still shows it. Release is best-effort, so a storage failure never
// fails the deletion.
func (s *StoryService) Delete(ctx context.Context, owner, id string) error {
	repo := s.repomanager.Stories(s.db)
	ref, err := repo.Delete(ctx, owner, id)
	if err != nil {
		return err
	}

	n, err := repo.CountByImage(ctx, ref)
	if err != nil {
		logging.FromContext(ctx, logging.Nop{}).Warn(ctx, "image kept, reference count failed", "ref", ref, "error", err)
		return nil
	}
	if n == 0 {
		s.assets.Release(ctx, ref)
	}
	return nil
}

func (s *StoryService) SetFavourite(ctx context.Context, owner, id string, favourite bool) (*models.Story, error) {
	return s.repomanager.Stories(s.db).SetFavourite(ctx, owner, id, favourite)
}

func (s *StoryService) Search(ctx context.Context, owner, query string) ([]*models.Story, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, common.Invalid("query is required")
	}
	return s.repomanager.Stories(s.db).Search(ctx, owner, query)
}

// FilterByDate returns stories visited between the two epoch-millisecond
// bounds, inclusive on calendar days.
func (s *StoryService) FilterByDate(ctx context.Context, owner, startRaw, endRaw string) ([]*models.Story, error) {
	from, err := parseMillis("startDate", startRaw)
	if err != nil {
		return nil, err
	}
	to, err := parseMillis("endDate", endRaw)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, common.Invalid("startDate must not be after endDate")
	}
	return s.repomanager.Stories(s.db).FilterByDate(ctx, owner, from, to)
}
