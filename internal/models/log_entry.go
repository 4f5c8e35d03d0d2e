// log_entry.go
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

package models

import (
	"fmt"
	"time"

	"github.com/localnerve/shopdb/internal/database"
)

// Redacted replaces payloads that must never reach the activity log.
const Redacted = "REDACTED"

// LogEntry is one mutating request recorded in the logs collection.
type LogEntry struct {
	ID        string      `json:"_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Method    string      `json:"method"`
	Path      string      `json:"path"`
	Payload   interface{} `json:"payload,omitempty"`
	Status    int         `json:"status"`
}

// Record converts e to a storable document.
func (e LogEntry) Record() (database.Record, error) {
	return toRecord(e)
}

// LogEntryFromRecord decodes a stored document.
func LogEntryFromRecord(rec database.Record) (LogEntry, error) {
	var e LogEntry
	if err := fromRecord(rec, &e); err != nil {
		return LogEntry{}, fmt.Errorf("invalid log record: %w", err)
	}
	return e, nil
}
