// registry.go
//
// An industrial shop operations backend with versioned database backups
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of shopdb.
// shopdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// shopdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with shopdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/types"
)

var engines = []Engine{NDJSONEngine{}, SQLiteEngine{}}

// EngineByName returns the engine registered under name.
func EngineByName(name string) (Engine, error) {
	for _, e := range engines {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unsupported storage engine: %s", name)
}

// EngineForFile picks the engine that wrote file, by extension.
func EngineForFile(file string) (Engine, bool) {
	ext := filepath.Ext(file)
	for _, e := range engines {
		if e.Ext() == ext {
			return e, true
		}
	}
	return nil, false
}

// Registry owns the live store: one Store per configured collection, all
// persisted under a single directory.
type Registry struct {
	dir    string
	engine Engine
	names  []string
	opts   map[string]Options

	// files is held shared by record mutations and exclusively by
	// maintenance that reads or rewrites collection files
	files sync.RWMutex

	mu     sync.RWMutex
	stores map[string]Store
	sealed bool
}

// Open builds the registry described by cfg, loading or creating every
// collection file.
func Open(cfg *config.Config) (*Registry, error) {
	engine, err := EngineByName(cfg.StorageEngine)
	if err != nil {
		return nil, err
	}

	opts := make(map[string]Options, len(cfg.Collections))
	for _, name := range cfg.Collections {
		o := Options{CompactionInterval: cfg.CompactionInterval}
		if name == config.CollectionApplication {
			o.Unique = []string{"username"}
		}
		opts[name] = o
	}

	return NewRegistry(cfg.StorageDir, engine, cfg.Collections, opts)
}

// NewRegistry opens names under dir with engine.
func NewRegistry(dir string, engine Engine, names []string, opts map[string]Options) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	r := &Registry{
		dir:    dir,
		engine: engine,
		names:  append([]string(nil), names...),
		opts:   opts,
		stores: make(map[string]Store, len(names)),
	}
	if err := r.openAll(); err != nil {
		r.closeAll()
		return nil, err
	}
	log.Printf("Opened %d %s collections in %s", len(r.names), engine.Name(), dir)
	return r, nil
}

func (r *Registry) openAll() error {
	for _, name := range r.names {
		s, err := r.engine.Open(name, r.Path(name), r.opts[name], &r.files)
		if err != nil {
			return fmt.Errorf("failed to open collection %s: %w", name, err)
		}
		r.stores[name] = s
	}
	return nil
}

func (r *Registry) closeAll() error {
	var errs []error
	for name, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Dir returns the live storage directory.
func (r *Registry) Dir() string { return r.dir }

// Engine returns the engine backing every collection.
func (r *Registry) Engine() Engine { return r.engine }

// Names returns the configured collection names, sorted.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

// FileName returns the on-disk file name for a collection.
func (r *Registry) FileName(name string) string {
	return name + r.engine.Ext()
}

// Path returns the on-disk path for a collection.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.dir, r.FileName(name))
}

// CollectionForFile maps a file name back to a configured collection.
func (r *Registry) CollectionForFile(file string) (string, bool) {
	if filepath.Ext(file) != r.engine.Ext() {
		return "", false
	}
	name := file[:len(file)-len(r.engine.Ext())]
	for _, n := range r.names {
		if n == name {
			return n, true
		}
	}
	return "", false
}

// Collection returns the live store for name.
func (r *Registry) Collection(name string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sealed {
		return nil, types.ErrUnavailable
	}
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, types.ErrNotFound)
	}
	return s, nil
}

// Sealed reports whether the registry stopped serving after a file replace.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Exclusive runs fn while no record mutation can touch collection files.
func (r *Registry) Exclusive(fn func() error) error {
	r.files.Lock()
	defer r.files.Unlock()
	return fn()
}

// Truncate empties the named collections in place.
func (r *Registry) Truncate(names []string) (int, error) {
	r.files.Lock()
	defer r.files.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sealed {
		return 0, types.ErrUnavailable
	}
	cleared := 0
	for _, name := range names {
		s, ok := r.stores[name]
		if !ok {
			continue
		}
		if err := s.Truncate(); err != nil {
			return cleared, fmt.Errorf("truncate %s: %w", name, err)
		}
		cleared++
	}
	return cleared, nil
}

// Replace closes every store, lets fn rewrite files in the live directory
// and then either reloads the stores or, when reload is false, seals the
// registry so nothing can write stale cached state over the new files
// before the process restarts. A failed fn always reloads.
func (r *Registry) Replace(reload bool, fn func(dir string) error) error {
	r.files.Lock()
	defer r.files.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return types.ErrUnavailable
	}
	if err := r.closeAll(); err != nil {
		log.Printf("Closing collections before replace: %v", err)
	}

	fnErr := fn(r.dir)
	if fnErr == nil && !reload {
		r.sealed = true
		return nil
	}
	if err := r.loadAllLocked(); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

// ReloadAll rereads every collection file from disk.
func (r *Registry) ReloadAll() error {
	r.files.Lock()
	defer r.files.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return types.ErrUnavailable
	}
	return r.loadAllLocked()
}

func (r *Registry) loadAllLocked() error {
	var errs []error
	for _, name := range r.names {
		if err := r.stores[name].Load(); err != nil {
			errs = append(errs, fmt.Errorf("reload %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every collection.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.closeAll()
}
