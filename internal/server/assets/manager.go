package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/metrics"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Manager applies upload policy on top of a Store and guards the shared
// placeholder image.
type Manager struct {
	store       Store
	placeholder string
	maxBytes    int64
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewManager(store Store, placeholderURL string, maxBytes int64, logger logging.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Manager{
		store:       store,
		placeholder: placeholderURL,
		maxBytes:    maxBytes,
		logger:      logger,
		metrics:     m,
	}
}

func (m *Manager) Placeholder() string { return m.placeholder }

// IsPlaceholder matches on the URL path, so the placeholder is recognised
// whichever public host it was issued under.
func (m *Manager) IsPlaceholder(ref string) bool {
	if ref == m.placeholder {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Path == common.PlaceholderImagePath
}

// Canonical returns the one spelling of an uploaded ref that the store acts
// on. Reference counting and removal both go through it.
func (m *Manager) Canonical(ref string) (string, bool) {
	return m.store.Canonical(strings.TrimSpace(ref))
}

// Upload reads at most maxBytes from r, checks that the content is an image
// and stores it under a fresh name. The extension follows the detected
// content, never the client's file name, so static serving cannot be
// tricked into another content type.
func (m *Manager) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return "", fmt.Errorf("image exceeds %d bytes: %w", m.maxBytes, common.ErrTooLarge)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image: %w", common.ErrValidation)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("unsupported content type %s: %w", mt.String(), common.ErrValidation)
	}

	name := uuid.NewString() + mt.Extension()

	ref, err := m.store.Put(ctx, name, mt.String(), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx, m.logger).Info(ctx, "image stored",
		"store", m.store.Name(), "name", name, "filename", filename, "size", len(data))
	return ref, nil
}

// Delete removes the asset at ref. It refuses the placeholder and reports
// deleted=false without error when nothing was stored under ref or the ref
// belongs to no store of ours.
func (m *Manager) Delete(ctx context.Context, ref string) (bool, error) {
	if m.IsPlaceholder(ref) {
		return false, common.ErrPlaceholderAsset
	}
	ref, ok := m.Canonical(ref)
	if !ok {
		return false, nil
	}
	if err := m.store.Remove(ctx, ref); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release is the cleanup run after a story is gone. Failures are logged
// and counted but never returned.
func (m *Manager) Release(ctx context.Context, ref string) {
	if ref == "" || m.IsPlaceholder(ref) {
		return
	}
	ref, ok := m.Canonical(ref)
	if !ok {
		return
	}

	log := logging.FromContext(ctx, m.logger)
	err := m.store.Remove(ctx, ref)
	switch {
	case err == nil:
		log.Debug(ctx, "image released", "ref", ref)
	case errors.Is(err, common.ErrNotFound):
		log.Debug(ctx, "image already absent", "ref", ref)
	default:
		m.metrics.AssetCleanupFailed()
		log.Warn(ctx, "image cleanup failed", "ref", ref, "error", err)
	}
}
