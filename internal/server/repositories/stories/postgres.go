package stories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/dbx"
	"github.com/dmitrijs2005/storykeeper/internal/server/models"
	"github.com/google/uuid"
)

const (
	storyColumns = `id, user_id, title, story, visited_location, image_url, visited_date, is_favourite, created_on`
	storyOrder   = `ORDER BY is_favourite DESC, created_on ASC, id ASC`
)

// PostgresRepository implements story storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*models.Story, error) {
	var (
		s    models.Story
		locs []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Story, &locs,
		&s.ImageURL, &s.VisitedDate, &s.IsFavourite, &s.CreatedOn); err != nil {
		return nil, err
	}
	if len(locs) > 0 {
		if err := json.Unmarshal(locs, &s.VisitedLocation); err != nil {
			return nil, fmt.Errorf("decode visited_location: %w", err)
		}
	}
	return &s, nil
}

func encodeLocations(l models.Locations) (string, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// likePattern turns q into an ILIKE pattern matching it as a literal substring.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresRepository) Create(ctx context.Context, story *models.Story) (*models.Story, error) {
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	locs, err := encodeLocations(story.VisitedLocation)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO stories (id, user_id, title, story, visited_location, image_url, visited_date, is_favourite)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_on
		 `
	err = r.db.QueryRowContext(ctx, query,
		story.ID, story.UserID, story.Title, story.Story, locs,
		story.ImageURL, story.VisitedDate, story.IsFavourite).Scan(&story.CreatedOn)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return story, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE user_id = $1 ` + storyOrder
	return r.list(ctx, query, owner)
}

func (r *PostgresRepository) GetByOwner(ctx context.Context, owner, id string) (*models.Story, error) {
	if !validID(id) {
		return nil, common.ErrNotFound
	}
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1 AND user_id = $2`
	return r.one(r.db.QueryRowContext(ctx, query, id, owner))
}

func (r *PostgresRepository) Update(ctx context.Context, story *models.Story) (*models.Story, error) {
	if !validID(story.ID) {
		return nil, common.ErrNotFound
	}
	locs, err := encodeLocations(story.VisitedLocation)
	if err != nil {
		return nil, err
	}

	query :=
		`UPDATE stories
		 SET title = $3, story = $4, visited_location = $5, image_url = $6, visited_date = $7
		 WHERE id = $1 AND user_id = $2
		 RETURNING ` + storyColumns
	return r.one(r.db.QueryRowContext(ctx, query,
		story.ID, story.UserID, story.Title, story.Story, locs, story.ImageURL, story.VisitedDate))
}

func (r *PostgresRepository) Delete(ctx context.Context, owner, id string) (string, error) {
	if !validID(id) {
		return "", common.ErrNotFound
	}

	var ref string
	query := `DELETE FROM stories WHERE id = $1 AND user_id = $2 RETURNING image_url`
	if err := r.db.QueryRowContext(ctx, query, id, owner).Scan(&ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return ref, nil
}

func (r *PostgresRepository) SetFavourite(ctx context.Context, owner, id string, favourite bool) (*models.Story, error) {
	if !validID(id) {
		return nil, common.ErrNotFound
	}
	query := `UPDATE stories SET is_favourite = $3 WHERE id = $1 AND user_id = $2 RETURNING ` + storyColumns
	return r.one(r.db.QueryRowContext(ctx, query, id, owner, favourite))
}

func (r *PostgresRepository) Search(ctx context.Context, owner, q string) ([]*models.Story, error) {
	query :=
		`SELECT ` + storyColumns + ` FROM stories
		 WHERE user_id = $1 AND (
		   title ILIKE $2 ESCAPE '\'
		   OR story ILIKE $2 ESCAPE '\'
		   OR EXISTS (
		     SELECT 1 FROM jsonb_array_elements_text(visited_location) AS loc
		     WHERE loc ILIKE $2 ESCAPE '\'
		   )
		 ) ` + storyOrder
	return r.list(ctx, query, owner, likePattern(q))
}

func (r *PostgresRepository) FilterByDate(ctx context.Context, owner string, from, to time.Time) ([]*models.Story, error) {
	query :=
		`SELECT ` + storyColumns + ` FROM stories
		 WHERE user_id = $1 AND visited_date >= $2 AND visited_date <= $3 ` + storyOrder
	return r.list(ctx, query, owner, from, to)
}

func (r *PostgresRepository) CountByImage(ctx context.Context, ref string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories WHERE image_url = $1`, ref).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) one(row *sql.Row) (*models.Story, error) {
	s, err := scanStory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Story, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select stories: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Story, 0)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
