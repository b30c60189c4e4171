// Package stories persists travel stories. Every lookup and mutation is
// scoped to the owning user; a story that exists but belongs to someone
// else is reported exactly like a missing one.
package stories

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/server/models"
)

// Repository lists stories favourites first, then oldest first.
type Repository interface {
	Create(ctx context.Context, story *models.Story) (*models.Story, error)
	ListByOwner(ctx context.Context, owner string) ([]*models.Story, error)
	GetByOwner(ctx context.Context, owner, id string) (*models.Story, error)
	// Update overwrites the editable fields of story (title, story,
	// locations, image, visited date) when (ID, UserID) matches.
	Update(ctx context.Context, story *models.Story) (*models.Story, error)
	// Delete removes the story and returns the image reference it held.
	Delete(ctx context.Context, owner, id string) (string, error)
	SetFavourite(ctx context.Context, owner, id string, favourite bool) (*models.Story, error)
	// Search matches query as a case-insensitive literal substring of the
	// title, the narrative or any location label.
	Search(ctx context.Context, owner, query string) ([]*models.Story, error)
	// FilterByDate returns stories whose visited date lies in [from, to].
	FilterByDate(ctx context.Context, owner string, from, to time.Time) ([]*models.Story, error)
	// CountByImage reports how many stories, of any owner, reference ref.
	CountByImage(ctx context.Context, ref string) (int, error)
}
