package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/server/assets"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
)

// ImageService handles uploads and the deletion of images that no story
// references.
type ImageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	assets      *assets.Manager
}

func NewImageService(db *sql.DB, m repomanager.RepositoryManager, a *assets.Manager) *ImageService {
	return &ImageService{db: db, repomanager: m, assets: a}
}

func (s *ImageService) Placeholder() string { return s.assets.Placeholder() }

func (s *ImageService) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	return s.assets.Upload(ctx, filename, r)
}

// DeleteOrphan removes an uploaded image nothing points at any more. It
// reports false when there was nothing to delete. The reference check and
// the removal both use the canonical ref, so a respelled URL cannot reach a
// file a story still shows.
func (s *ImageService) DeleteOrphan(ctx context.Context, ref string) (bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false, common.Invalid("imageUrl parameter is required")
	}
	if s.assets.IsPlaceholder(ref) {
		return false, common.ErrPlaceholderAsset
	}

	ref, ok := s.assets.Canonical(ref)
	if !ok {
		return false, nil
	}

	n, err := s.repomanager.Stories(s.db).CountByImage(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("count image references: %w", err)
	}
	if n > 0 {
		return false, common.ErrAssetInUse
	}

	return s.assets.Delete(ctx, ref)
}
