// Package profile serves the operator's profile and ordered links from a
// TOML file, reloading it when the file changes on disk.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Profile is the single profile record.
type Profile struct {
	Username    string `toml:"username" json:"username" validate:"required"`
	DisplayName string `toml:"display_name" json:"displayName,omitempty"`
	Bio         string `toml:"bio" json:"bio,omitempty"`
	Avatar      string `toml:"avatar" json:"avatar,omitempty" validate:"omitempty,url"`
	Background  string `toml:"background" json:"background,omitempty" validate:"omitempty,url"`
	Location    string `toml:"location" json:"location,omitempty"`
}

// Link is one entry of the ordered link list.
type Link struct {
	Title    string `toml:"title" json:"title" validate:"required"`
	URL      string `toml:"url" json:"url" validate:"required,url"`
	Icon     string `toml:"icon" json:"icon,omitempty"`
	Position int    `toml:"position" json:"position"`
}

// Document is the parsed file.
type Document struct {
	Profile Profile `toml:"profile" json:"profile"`
	Links   []Link  `toml:"links" json:"links" validate:"dive"`
}

var validate = validator.New()

// Parse decodes and validates a profile document. Links are sorted by
// position, keeping file order for equal positions.
func Parse(data []byte) (Document, error) {
	var doc Document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Document{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return Document{}, fmt.Errorf("invalid profile: %w", err)
	}
	sort.SliceStable(doc.Links, func(i, j int) bool {
		return doc.Links[i].Position < doc.Links[j].Position
	})
	return doc, nil
}

// Store holds the current document for a file path.
type Store struct {
	path string
	log  *logrus.Entry

	mu  sync.RWMutex
	doc Document
}

// NewStore loads path. A missing file yields an empty document so the
// service can start before the file is created.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		log:  logrus.WithFields(logrus.Fields{"component": "profile", "path": path}),
	}
	if err := s.Reload(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("profile file not found, serving empty profile")
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Current returns the loaded document.
func (s *Store) Current() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.doc
	doc.Links = append([]Link(nil), s.doc.Links...)
	return doc
}

// Reload re-reads the file. On error the previous document is kept.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", s.path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes until ctx is canceled. The
// parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.log.Info("watching profile file")

	name := filepath.Clean(s.path)
	// Writes often arrive as bursts; reload once they settle.
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(100 * time.Millisecond)
			}
		case <-debounce:
			debounce = nil
			if err := s.Reload(); err != nil {
				s.log.WithError(err).Warn("profile reload failed, keeping previous")
				continue
			}
			s.log.Info("profile reloaded")
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("profile watcher error")
		}
	}
}

// Serve implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	return s.Watch(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *Store) String() string {
	return "profile-watcher"
}
