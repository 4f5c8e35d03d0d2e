// restart.go
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
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// RestartExitCode is the process status after a restart-policy restore. It
// is non-zero so supervisors that only restart failed processes (docker
// --restart=on-failure, systemd Restart=on-failure) bring the service back.
const RestartExitCode = 75

// Restarter ends the process after the live store files were replaced so
// a supervisor can start it again with a fresh in-memory cache.
type Restarter interface {
	ScheduleRestart(reason string)
}

// DelayedRestarter runs Exit once, Delay after the first request.
type DelayedRestarter struct {
	Delay time.Duration
	Exit  func()

	once  sync.Once
	fired atomic.Bool
}

// NewDelayedRestarter returns a restarter that calls exit after delay.
func NewDelayedRestarter(delay time.Duration, exit func()) *DelayedRestarter {
	return &DelayedRestarter{Delay: delay, Exit: exit}
}

// ScheduleRestart arms the exit timer; later calls are ignored.
func (r *DelayedRestarter) ScheduleRestart(reason string) {
	r.once.Do(func() {
		log.Printf("Restart scheduled in %s: %s", r.Delay, reason)
		time.AfterFunc(r.Delay, func() {
			r.fired.Store(true)
			r.Exit()
		})
	})
}

// Fired reports whether the exit timer ran.
func (r *DelayedRestarter) Fired() bool {
	return r.fired.Load()
}
