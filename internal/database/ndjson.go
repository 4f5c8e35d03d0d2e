// ndjson.go
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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/localnerve/shopdb/internal/fsutil"
	"github.com/localnerve/shopdb/internal/types"
)

const deletedFlag = "$$deleted"

// NDJSONEngine stores each collection as newline-delimited JSON. Writes are
// appended; the full document set lives in memory and is rebuilt on Load.
type NDJSONEngine struct{}

func (NDJSONEngine) Name() string { return "ndjson" }
func (NDJSONEngine) Ext() string  { return ".db" }

func (NDJSONEngine) Open(name, path string, opts Options, files *sync.RWMutex) (Store, error) {
	s := &ndjsonStore{name: name, path: path, opts: opts, files: files}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFile returns the last limit lines of path, decoded one record per
// line. Lines that do not decode are reported with ParseErrorRecord.
func (NDJSONEngine) ReadFile(path string, limit int) (*FileContents, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}

	lines := splitLines(raw)
	out := &FileContents{TotalLines: len(lines)}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
		out.Truncated = true
	}
	out.ShowingLast = len(lines)
	out.Records = make([]Record, 0, len(lines))
	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec == nil {
			out.Records = append(out.Records, ParseErrorRecord(string(line)))
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func splitLines(raw []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

type ndjsonStore struct {
	name  string
	path  string
	opts  Options
	files *sync.RWMutex

	mu     sync.RWMutex
	docs   map[string]Record
	order  []string
	f      *os.File
	closed bool
	stop   chan struct{}
}

func (s *ndjsonStore) Name() string { return s.name }
func (s *ndjsonStore) Path() string { return s.path }

// Load (re)reads the file from disk, creating it when absent.
func (s *ndjsonStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", s.name, err)
	}

	s.docs = make(map[string]Record)
	s.order = nil
	skipped := 0
	for _, line := range splitLines(raw) {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec == nil {
			skipped++
			continue
		}
		id := rec.ID()
		if id == "" {
			// index definitions and other metadata lines
			continue
		}
		if deleted, _ := rec[deletedFlag].(bool); deleted {
			s.removeLocked(id)
			continue
		}
		if _, ok := s.docs[id]; !ok {
			s.order = append(s.order, id)
		}
		s.docs[id] = rec
	}
	if skipped > 0 {
		log.Printf("Collection %s: skipped %d unreadable lines", s.name, skipped)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.name, err)
	}
	s.f = f
	s.closed = false

	if s.opts.CompactionInterval > 0 {
		s.stop = make(chan struct{})
		go s.autocompact(s.opts.CompactionInterval, s.stop)
	}
	return nil
}

func (s *ndjsonStore) Insert(rec Record) (Record, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrUnavailable
	}

	doc, line, err := s.prepare(rec)
	if err != nil {
		return nil, err
	}
	id := doc.ID()
	if _, exists := s.docs[id]; exists {
		return nil, fmt.Errorf("%w: duplicate id %s", types.ErrConflict, id)
	}
	if err := s.checkUnique(doc); err != nil {
		return nil, err
	}
	if err := s.appendLine(line); err != nil {
		return nil, err
	}
	s.docs[id] = doc
	s.order = append(s.order, id)
	return doc.Clone(), nil
}

func (s *ndjsonStore) FindAll() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrUnavailable
	}
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id].Clone())
	}
	return out, nil
}

func (s *ndjsonStore) FindByID(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrUnavailable
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *ndjsonStore) UpdateByID(id string, fields Record) (Record, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrUnavailable
	}
	existing, ok := s.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	doc, line, err := s.prepare(merge(existing, fields))
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(doc); err != nil {
		return nil, err
	}
	if err := s.appendLine(line); err != nil {
		return nil, err
	}
	s.docs[id] = doc
	return doc.Clone(), nil
}

func (s *ndjsonStore) DeleteByID(id string) (bool, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, types.ErrUnavailable
	}
	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	line, err := json.Marshal(Record{IDField: id, deletedFlag: true})
	if err != nil {
		return false, err
	}
	if err := s.appendLine(line); err != nil {
		return false, err
	}
	s.removeLocked(id)
	return true, nil
}

// Truncate empties the collection in place; the file itself is kept.
func (s *ndjsonStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrUnavailable
	}
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.name, err)
	}
	s.docs = make(map[string]Record)
	s.order = nil
	return nil
}

// Compact rewrites the file with one line per live record.
func (s *ndjsonStore) Compact() error {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrUnavailable
	}

	var buf bytes.Buffer
	for _, id := range s.order {
		b, err := json.Marshal(s.docs[id])
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(s.path, &buf); err != nil {
		return fmt.Errorf("failed to compact %s: %w", s.name, err)
	}

	// the old handle points at the replaced inode
	s.f.Close()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.closed = true
		return fmt.Errorf("failed to reopen %s: %w", s.name, err)
	}
	s.f = f
	return nil
}

func (s *ndjsonStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *ndjsonStore) closeLocked() error {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *ndjsonStore) autocompact(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Compact(); err != nil && !errors.Is(err, types.ErrUnavailable) {
				log.Printf("Collection %s: compaction failed: %v", s.name, err)
			}
		}
	}
}

// prepare assigns an id when missing and normalizes the document.
func (s *ndjsonStore) prepare(rec Record) (Record, []byte, error) {
	doc := rec.Clone()
	if doc == nil {
		doc = Record{}
	}
	if doc.ID() == "" {
		doc[IDField] = newID()
	}
	delete(doc, deletedFlag)
	out, line, err := normalize(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	return out, line, nil
}

func (s *ndjsonStore) checkUnique(doc Record) error {
	for _, field := range s.opts.Unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for id, other := range s.docs {
			if id != doc.ID() && reflect.DeepEqual(other[field], v) {
				return fmt.Errorf("%w: %s already exists", types.ErrConflict, field)
			}
		}
	}
	return nil
}

func (s *ndjsonStore) appendLine(line []byte) error {
	line = append(line, '\n')
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.name, err)
	}
	return nil
}

func (s *ndjsonStore) removeLocked(id string) {
	if _, ok := s.docs[id]; !ok {
		return
	}
	delete(s.docs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
