// scheduler.go
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
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Snapshotter is the part of the backup engine the scheduler drives.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context) (*SnapshotResult, error)
}

// Scheduler takes the startup snapshot and, when an interval is set,
// periodic ones after that. Failures are logged and never stop the server.
type Scheduler struct {
	engine   Snapshotter
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	lastRun time.Time
}

// NewScheduler returns a scheduler for engine. interval <= 0 disables the
// periodic loop.
func NewScheduler(engine Snapshotter, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, stopCh: make(chan struct{})}
}

// RunOnce takes one snapshot, logging and swallowing any failure.
func (s *Scheduler) RunOnce(ctx context.Context, reason string) {
	result, err := s.engine.CreateSnapshot(ctx)
	if err != nil {
		log.Printf("%s backup failed, server will proceed: %v", reason, err)
		return
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
	log.Printf("%s backup completed: version=%s, kept=%v", reason, result.VersionName, result.ActiveVersions)
}

// LastRun returns when the last successful scheduled snapshot finished.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Start blocks, snapshotting every interval until ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Backup scheduler started: interval=%v", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Backup scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			log.Println("Backup scheduler stopping (stop requested)")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx, "Scheduled")
		}
	}
}

// Stop ends a running Start loop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("backup scheduler is not running")
	}
	close(s.stopCh)
	s.running = false
	return nil
}
