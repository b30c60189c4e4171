package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/filex"
)

// UploadsRoute is the URL prefix under which LocalStore files are served.
const UploadsRoute = "/uploads/"

// LocalStore keeps images in a directory served under /uploads.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir when missing. Refs are built as
// <publicBaseURL>/uploads/<name>.
func NewLocalStore(dir, publicBaseURL string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{dir: abs, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid asset name %q: %w", name, common.ErrValidation)
	}

	err := filex.WriteFileAtomic(filepath.Join(s.dir, name), func(f *os.File) error {
		_, err := io.Copy(f, r)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return s.baseURL + UploadsRoute + name, nil
}

// objectName extracts the stored file name from ref. Only a single path
// element directly under /uploads/ qualifies.
func objectName(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" {
		return "", false
	}
	p := path.Clean(u.Path)
	if path.Dir(p)+"/" != UploadsRoute {
		return "", false
	}
	name := path.Base(p)
	if name == "." || name == ".." || name == "/" {
		return "", false
	}
	return name, true
}

// Canonical rebuilds ref on this store's base URL, whatever host, query or
// fragment the caller's spelling carries.
func (s *LocalStore) Canonical(ref string) (string, bool) {
	name, ok := objectName(ref)
	if !ok {
		return "", false
	}
	return s.baseURL + UploadsRoute + name, true
}

// Remove resolves ref to a file directly inside the uploads directory.
func (s *LocalStore) Remove(_ context.Context, ref string) error {
	name, ok := objectName(ref)
	if !ok {
		return common.ErrNotFound
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
