// metrics.go
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopdb_snapshots_created_total",
		Help: "Snapshots written to the backup root",
	})

	snapshotsPrunedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdb_snapshots_pruned_total",
		Help: "Snapshot directories deleted, by cause",
	}, []string{"cause"})

	snapshotDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopdb_snapshot_duration_seconds",
		Help:    "Time spent creating one snapshot",
		Buckets: prometheus.DefBuckets,
	})

	restoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdb_restores_total",
		Help: "Live store replacements, by source",
	}, []string{"source"})

	maintenanceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdb_maintenance_failures_total",
		Help: "Failed maintenance operations, by operation",
	}, []string{"op"})

	activityWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopdb_activity_entries_written_total",
		Help: "Activity log entries persisted",
	})

	activityDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopdb_activity_entries_dropped_total",
		Help: "Activity log entries dropped because the queue was full",
	})
)
