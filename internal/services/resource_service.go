// resource_service.go
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
	"reflect"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/types"
)

// ResourceService is the create/read/update/delete surface over the
// business collections.
type ResourceService struct {
	registry   *database.Registry
	resources  map[string]bool
	validators map[string]Validator
}

// NewResourceService exposes resources through registry, checking writes
// with validators.
func NewResourceService(registry *database.Registry, resources []string, validators map[string]Validator) *ResourceService {
	allowed := make(map[string]bool, len(resources))
	for _, r := range resources {
		allowed[r] = true
	}
	return &ResourceService{registry: registry, resources: allowed, validators: validators}
}

// Resources returns the served resource names.
func (s *ResourceService) Resources() []string {
	out := make([]string, 0, len(config.Resources))
	for _, r := range config.Resources {
		if s.resources[r] {
			out = append(out, r)
		}
	}
	return out
}

func (s *ResourceService) store(resource string) (database.Store, error) {
	if !s.resources[resource] {
		return nil, fmt.Errorf("resource %q: %w", resource, types.ErrNotFound)
	}
	return s.registry.Collection(resource)
}

func (s *ResourceService) validate(resource string, rec database.Record) error {
	v, ok := s.validators[resource]
	if !ok {
		return nil
	}
	if errs := v(rec); len(errs) > 0 {
		return &types.FieldErrors{Errors: errs}
	}
	return nil
}

// Create validates every record before inserting any of them.
func (s *ResourceService) Create(resource string, recs []database.Record) ([]database.Record, error) {
	store, err := s.store(resource)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no records submitted", types.ErrValidation)
	}
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is empty", types.ErrValidation, i)
		}
		if err := s.validate(resource, rec); err != nil {
			return nil, err
		}
	}

	created := make([]database.Record, 0, len(recs))
	for _, rec := range recs {
		doc, err := store.Insert(rec)
		if err != nil {
			return created, err
		}
		created = append(created, doc)
	}
	return created, nil
}

// List returns every record in insertion order.
func (s *ResourceService) List(resource string) ([]database.Record, error) {
	store, err := s.store(resource)
	if err != nil {
		return nil, err
	}
	return store.FindAll()
}

// Get returns one record.
func (s *ResourceService) Get(resource, id string) (database.Record, error) {
	store, err := s.store(resource)
	if err != nil {
		return nil, err
	}
	return store.FindByID(id)
}

// Update merges fields into a record. The merged result must still pass
// the resource validator.
func (s *ResourceService) Update(resource, id string, fields database.Record) (database.Record, error) {
	store, err := s.store(resource)
	if err != nil {
		return nil, err
	}
	existing, err := store.FindByID(id)
	if err != nil {
		return nil, err
	}

	merged := existing.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	if err := s.validate(resource, merged); err != nil {
		return nil, err
	}
	// validators may normalize fields (pallet z); carry those along
	update := make(database.Record, len(fields))
	for k, v := range merged {
		if _, sent := fields[k]; sent || !reflect.DeepEqual(existing[k], v) {
			update[k] = v
		}
	}
	return store.UpdateByID(id, update)
}

// Delete removes a record; an unknown id is not found.
func (s *ResourceService) Delete(resource, id string) error {
	store, err := s.store(resource)
	if err != nil {
		return err
	}
	removed, err := store.DeleteByID(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("record %q: %w", id, types.ErrNotFound)
	}
	return nil
}
