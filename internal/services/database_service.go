// database_service.go
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
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/types"
)

// LiveFile is one row of the live database listing.
type LiveFile struct {
	Name         string    `json:"name"`
	SizeInBytes  int64     `json:"sizeInBytes"`
	Size         string    `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// LiveFileContents is the inspection view of one live collection file.
type LiveFileContents struct {
	FileName string `json:"fileName"`
	*database.FileContents
}

// DatabaseService lets operators look at the live collection files.
type DatabaseService struct {
	cfg      *config.Config
	registry *database.Registry
}

// NewDatabaseService returns an inspector for registry's files.
func NewDatabaseService(cfg *config.Config, registry *database.Registry) *DatabaseService {
	return &DatabaseService{cfg: cfg, registry: registry}
}

// ListFiles describes every non-protected live collection file.
func (s *DatabaseService) ListFiles() ([]LiveFile, error) {
	var files []LiveFile
	for _, name := range s.registry.Names() {
		if s.cfg.IsProtectedCollection(name) {
			continue
		}
		fi, err := os.Stat(s.registry.Path(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, types.Maintenance("list live files", err)
		}
		files = append(files, LiveFile{
			Name:         s.registry.FileName(name),
			SizeInBytes:  fi.Size(),
			Size:         humanize.Bytes(uint64(fi.Size())),
			LastModified: fi.ModTime(),
		})
	}
	return files, nil
}

// InspectFile decodes the newest InspectLimit records of a live file.
// Writers are held off while the file is read.
func (s *DatabaseService) InspectFile(file string) (*LiveFileContents, error) {
	if s.cfg.IsProtectedFile(file) {
		return nil, fmt.Errorf("%s: %w", file, types.ErrForbidden)
	}
	name, ok := s.registry.CollectionForFile(file)
	if !ok {
		return nil, fmt.Errorf("file %q: %w", file, types.ErrNotFound)
	}

	var contents *database.FileContents
	err := s.registry.Exclusive(func() error {
		var err error
		contents, err = s.registry.Engine().ReadFile(s.registry.Path(name), s.cfg.InspectLimit)
		return err
	})
	if err != nil {
		return nil, types.Maintenance("inspect live file", err)
	}
	return &LiveFileContents{FileName: file, FileContents: contents}, nil
}
