// sqlite.go
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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/shopdb/internal/types"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/hints"
)

// recordRow is the single table inside every sqlite collection file.
type recordRow struct {
	Seq       uint64         `gorm:"primaryKey;autoIncrement"`
	ID        string         `gorm:"column:id;uniqueIndex;size:64;not null"`
	Body      datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (recordRow) TableName() string {
	return "records"
}

// SQLiteEngine keeps each collection in its own SQLite database file. The
// rollback journal (not WAL) is used so the file alone is a complete copy.
type SQLiteEngine struct{}

func (SQLiteEngine) Name() string { return "sqlite" }
func (SQLiteEngine) Ext() string  { return ".sqlite" }

func (SQLiteEngine) Open(name, path string, opts Options, files *sync.RWMutex) (Store, error) {
	s := &sqliteStore{name: name, path: path, opts: opts, files: files}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFile opens path read-only and returns its last limit records.
func (SQLiteEngine) ReadFile(path string, limit int) (*FileContents, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}

	db, err := openSQLite("file:"+path+"?mode=ro&_pragma=busy_timeout(5000)", logger.Silent)
	if err != nil {
		return nil, err
	}
	defer closeSQLite(db)

	out := &FileContents{Records: []Record{}}
	if !db.Migrator().HasTable(&recordRow{}) {
		return out, nil
	}

	var total int64
	if err := db.Model(&recordRow{}).Count(&total).Error; err != nil {
		return nil, err
	}
	out.TotalLines = int(total)

	query := db.Clauses(hints.Comment("select", "shopdb:inspect")).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
		out.Truncated = total > int64(limit)
	}
	var rows []recordRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	for i := len(rows) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal(rows[i].Body, &rec); err != nil || rec == nil {
			out.Records = append(out.Records, ParseErrorRecord(string(rows[i].Body)))
			continue
		}
		out.Records = append(out.Records, rec)
	}
	out.ShowingLast = len(out.Records)
	return out, nil
}

func openSQLite(dsn string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite collection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	// one writer per file keeps the rollback journal simple
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

func closeSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteStore struct {
	name  string
	path  string
	opts  Options
	files *sync.RWMutex

	mu sync.RWMutex
	db *gorm.DB
}

func (s *sqliteStore) Name() string { return s.name }
func (s *sqliteStore) Path() string { return s.path }

func (s *sqliteStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	db, err := openSQLite(s.path+"?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)", logger.Warn)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		closeSQLite(db)
		return fmt.Errorf("failed to migrate %s: %w", s.name, err)
	}
	s.db = db
	return nil
}

func (s *sqliteStore) Insert(rec Record) (Record, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, types.ErrUnavailable
	}

	doc := rec.Clone()
	if doc == nil {
		doc = Record{}
	}
	if doc.ID() == "" {
		doc[IDField] = newID()
	}
	doc, body, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&recordRow{}).Where("id = ?", doc.ID()).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: duplicate id %s", types.ErrConflict, doc.ID())
		}
		if err := s.checkUnique(tx, doc); err != nil {
			return err
		}
		return tx.Create(&recordRow{ID: doc.ID(), Body: datatypes.JSON(body)}).Error
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *sqliteStore) FindAll() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, types.ErrUnavailable
	}
	var rows []recordRow
	if err := s.db.Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *sqliteStore) FindByID(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, types.ErrUnavailable
	}
	var row recordRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return decodeRow(row)
}

func (s *sqliteStore) UpdateByID(id string, fields Record) (Record, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, types.ErrUnavailable
	}

	var updated Record
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row recordRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}
		existing, err := decodeRow(row)
		if err != nil {
			return err
		}
		doc, body, err := normalize(merge(existing, fields))
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
		if err := s.checkUnique(tx, doc); err != nil {
			return err
		}
		if err := tx.Model(&recordRow{}).Where("seq = ?", row.Seq).Update("body", datatypes.JSON(body)).Error; err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *sqliteStore) DeleteByID(id string) (bool, error) {
	s.files.RLock()
	defer s.files.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, types.ErrUnavailable
	}
	result := s.db.Where("id = ?", id).Delete(&recordRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Truncate deletes every row; the database file stays in place.
func (s *sqliteStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return types.ErrUnavailable
	}
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&recordRow{}).Error
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *sqliteStore) closeLocked() error {
	if s.db == nil {
		return nil
	}
	err := closeSQLite(s.db)
	s.db = nil
	return err
}

func (s *sqliteStore) checkUnique(tx *gorm.DB, doc Record) error {
	for _, field := range s.opts.Unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		var n int64
		err := tx.Model(&recordRow{}).
			Where(datatypes.JSONQuery("body").Equals(v, field)).
			Where("id <> ?", doc.ID()).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s already exists", types.ErrConflict, field)
		}
	}
	return nil
}

func decodeRow(row recordRow) (Record, error) {
	var rec Record
	if err := json.Unmarshal(row.Body, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", row.ID, err)
	}
	return rec, nil
}
