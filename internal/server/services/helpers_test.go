package services

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/assets"
	"github.com/dmitrijs2005/storykeeper/internal/server/auth"
	"github.com/dmitrijs2005/storykeeper/internal/server/config"
	"github.com/dmitrijs2005/storykeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

const testPlaceholder = "http://localhost:8000/assets/placeholder.png"

// memStore is an assets.Store keeping objects in a map.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	removed   []string
	removeErr error
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := "http://localhost:8000/uploads/" + name
	m.objects[ref] = b
	return ref, nil
}

func (m *memStore) Remove(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ref)
	if m.removeErr != nil {
		return m.removeErr
	}
	if _, ok := m.objects[ref]; !ok {
		return common.ErrNotFound
	}
	delete(m.objects, ref)
	return nil
}

func (m *memStore) Canonical(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	p := path.Clean(u.Path)
	if path.Dir(p) != "/uploads" {
		return "", false
	}
	return "http://localhost:8000/uploads/" + path.Base(p), true
}

type fixture struct {
	repos  repomanager.RepositoryManager
	store  *memStore
	users  *UserService
	story  *StoryService
	images *ImageService
	issuer *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{BcryptCost: bcrypt.MinCost}
	repos := repomanager.NewMemoryRepositoryManager()
	store := newMemStore()
	mgr := assets.NewManager(store, testPlaceholder, 1<<20, logging.Nop{}, metrics.New())
	issuer := auth.NewIssuer("test-secret", time.Hour)

	return &fixture{
		repos:  repos,
		store:  store,
		users:  NewUserService(nil, repos, issuer, cfg),
		story:  NewStoryService(nil, repos, mgr),
		images: NewImageService(nil, repos, mgr),
		issuer: issuer,
	}
}

var errStorage = errors.New("storage unavailable")
