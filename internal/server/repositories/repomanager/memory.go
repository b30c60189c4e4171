package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/storykeeper/internal/dbx"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/stories"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory repositories for any
// DBTX, including nil. Data lives as long as the manager.
type MemoryRepositoryManager struct {
	users   *users.MemoryRepository
	stories *stories.MemoryRepository
}

func NewMemoryRepositoryManager() RepositoryManager {
	return &MemoryRepositoryManager{
		users:   users.NewMemoryRepository(),
		stories: stories.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.users
}

func (m *MemoryRepositoryManager) Stories(dbx.DBTX) stories.Repository {
	return m.stories
}
