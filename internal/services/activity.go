// activity.go
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

package services

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/models"
	"github.com/localnerve/shopdb/internal/types"
)

const (
	activityQueueSize  = 256
	activityPruneEvery = 50
)

// ActivityLog persists LogEntries to the logs collection from a single
// writer goroutine fed by a bounded queue. When the queue is full new
// entries are dropped and counted instead of blocking requests.
type ActivityLog struct {
	registry  *database.Registry
	retention int

	mu     sync.RWMutex
	closed bool
	queue  chan models.LogEntry
	done   chan struct{}

	writeMu    sync.Mutex
	sincePrune int
}

// NewActivityLog starts the writer. retention bounds the number of entries
// kept; 0 keeps everything.
func NewActivityLog(registry *database.Registry, retention int) *ActivityLog {
	a := &ActivityLog{
		registry:  registry,
		retention: retention,
		queue:     make(chan models.LogEntry, activityQueueSize),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *ActivityLog) run() {
	defer close(a.done)
	for entry := range a.queue {
		if err := a.Write(entry); err != nil && !errors.Is(err, types.ErrUnavailable) {
			log.Printf("Activity log write failed: %v", err)
		}
	}
}

// Record queues entry without blocking.
func (a *ActivityLog) Record(entry models.LogEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- entry:
	default:
		activityDroppedTotal.Inc()
	}
}

// Write stores entry synchronously and prunes past the retention limit
// every few writes.
func (a *ActivityLog) Write(entry models.LogEntry) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	store, err := a.registry.Collection(config.CollectionLogs)
	if err != nil {
		return err
	}
	rec, err := entry.Record()
	if err != nil {
		return err
	}
	if _, err := store.Insert(rec); err != nil {
		return err
	}
	activityWrittenTotal.Inc()

	a.sincePrune++
	if a.retention > 0 && a.sincePrune >= activityPruneEvery {
		a.sincePrune = 0
		if _, err := a.Prune(); err != nil {
			log.Printf("Activity log prune failed: %v", err)
		}
	}
	return nil
}

// Prune deletes the oldest entries beyond the retention limit and returns
// how many were removed.
func (a *ActivityLog) Prune() (int, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	store, err := a.registry.Collection(config.CollectionLogs)
	if err != nil {
		return 0, err
	}
	entries, err := a.entries(store)
	if err != nil {
		return 0, err
	}
	if len(entries) <= a.retention {
		return 0, nil
	}

	removed := 0
	for _, entry := range entries[a.retention:] {
		ok, err := store.DeleteByID(entry.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Recent returns up to limit entries, newest first.
func (a *ActivityLog) Recent(limit int) ([]models.LogEntry, error) {
	store, err := a.registry.Collection(config.CollectionLogs)
	if err != nil {
		return nil, err
	}
	entries, err := a.entries(store)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// entries decodes the whole collection, newest first.
func (a *ActivityLog) entries(store database.Store) ([]models.LogEntry, error) {
	all, err := store.FindAll()
	if err != nil {
		return nil, err
	}
	entries := make([]models.LogEntry, 0, len(all))
	// walk backwards so equal timestamps stay newest first
	for i := len(all) - 1; i >= 0; i-- {
		entry, err := models.LogEntryFromRecord(all[i])
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Close stops accepting entries and waits for the queue to drain.
func (a *ActivityLog) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
