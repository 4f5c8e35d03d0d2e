// store.go
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
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDField is the store-assigned identifier carried by every record.
const IDField = "_id"

// Record is one JSON document in a collection.
type Record map[string]interface{}

// ID returns the record identifier, or "" when it has none.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a deep copy so callers can never mutate cached documents.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(r)).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Record:
		return cloneValue(map[string]interface{}(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// merge applies a partial update; the identifier is never overwritten.
func merge(existing, fields Record) Record {
	out := existing.Clone()
	for k, v := range fields {
		if k == IDField {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// normalize round-trips a record through JSON so that cached values have
// the same shapes (float64, []interface{}, map[string]interface{}) a
// reload from disk would produce.
func normalize(r Record) (Record, []byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, nil, err
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, nil, err
	}
	return out, b, nil
}

func newID() string {
	return uuid.New().String()
}

// Options tune one collection.
type Options struct {
	// Unique lists top-level fields whose values must not repeat across records.
	Unique []string
	// CompactionInterval rewrites append-only files periodically; 0 disables it.
	CompactionInterval time.Duration
}

// Store is a named collection persisted as exactly one file.
//
// Mutations hold the registry file lock shared, so Registry.Exclusive sees
// quiescent files. Truncate and Load do not take that lock; the registry
// calls them while it already holds it.
type Store interface {
	Name() string
	Path() string
	Insert(rec Record) (Record, error)
	FindAll() ([]Record, error)
	FindByID(id string) (Record, error)
	UpdateByID(id string, fields Record) (Record, error)
	DeleteByID(id string) (bool, error)
	Truncate() error
	Load() error
	Close() error
}

// Engine creates stores and reads their files for inspection.
type Engine interface {
	Name() string
	Ext() string
	Open(name, path string, opts Options, files *sync.RWMutex) (Store, error)
	ReadFile(path string, limit int) (*FileContents, error)
}

// FileContents is the inspection view of one collection file.
type FileContents struct {
	Records     []Record `json:"data"`
	TotalLines  int      `json:"totalLines"`
	ShowingLast int      `json:"showingLast"`
	Truncated   bool     `json:"truncated"`
}

// ParseErrorRecord marks a line that could not be decoded. Inspection
// keeps going and reports the raw text in its place.
func ParseErrorRecord(raw string) Record {
	return Record{"_parseError": true, "raw": raw}
}
