package rules

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Provider hands out the loaded rule store. The document is loaded
// lazily on first use and cached for the rest of the run; a parse
// failure leaves the cache unset so the next call retries once the
// document is fixed. Watch keeps the cache in sync with the file on
// disk, always swapping complete stores under the lock so readers never
// observe a half-loaded rule set.
type Provider struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	store  *Store
	loaded bool
}

// NewProvider creates a provider for the rule document at path. Nothing
// is read until the first Store call.
func NewProvider(path string) *Provider {
	return &Provider{
		path:   path,
		logger: log.With().Str("component", "rules").Logger(),
	}
}

// Path returns the rule document location this provider reads from.
func (p *Provider) Path() string { return p.path }

// Store returns the cached rule store, loading the document on first
// use. The returned store is shared and must be treated as read-only.
func (p *Provider) Store() (*Store, error) {
	p.mu.RLock()
	if p.loaded {
		store := p.store
		p.mu.RUnlock()
		return store, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return p.store, nil
	}
	store, err := Load(p.path)
	if err != nil {
		return nil, err
	}
	p.store = store
	p.loaded = true
	p.logger.Info().Str("path", p.path).Int("rules", len(store.Rules)).Msg("Rule document loaded")
	return store, nil
}

// Reload re-reads the document immediately. On failure the previously
// cached store stays in place and the error is returned.
func (p *Provider) Reload() error {
	store, err := Load(p.path)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Rule document reload failed, keeping previous rules")
		return err
	}
	p.mu.Lock()
	p.store = store
	p.loaded = true
	p.mu.Unlock()
	p.logger.Info().Int("rules", len(store.Rules)).Msg("Rule document reloaded")
	return nil
}

// Watch re-loads the rule document whenever it changes on disk, until
// ctx is cancelled. The parent directory is watched rather than the file
// itself because editors and config management tools typically replace
// the file by rename, which would otherwise drop the watch.
func (p *Provider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	p.logger.Info().Str("dir", dir).Msg("Watching rule document for changes")

	target := filepath.Clean(p.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				p.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error().Err(err).Msg("Rule watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}
