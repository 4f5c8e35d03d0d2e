// health.go
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
	"log"
	"os"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/utils"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Storage      string            `json:"storage"`
	Backups      string            `json:"backups"`
	Authorizer   string            `json:"authorizer,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(key string, err error, message string) {
	r.Status = "unhealthy"
	r.Details[key] = err.Error()
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	} else {
		r.ErrorMessage += fmt.Sprintf("; %s: %v", message, err)
	}
	log.Printf("Health check failed - %s: %v", message, err)
}

// HealthCheck verifies the live store is serving and both directories are
// writable, plus the Authorizer when an access policy depends on it.
func HealthCheck(cfg *config.Config, registry *database.Registry) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	switch {
	case registry.Sealed():
		result.Storage = "restarting"
		result.fail("storage_error", fmt.Errorf("live store sealed until restart"), "Storage unavailable")
	default:
		if err := checkWritable(cfg.StorageDir); err != nil {
			result.Storage = "error"
			result.fail("storage_error", err, "Storage directory not writable")
		} else {
			result.Storage = "ok"
			result.Details["storage_engine"] = registry.Engine().Name()
		}
	}

	if err := checkWritable(cfg.BackupDir); err != nil {
		result.Backups = "error"
		result.fail("backups_error", err, "Backup directory not writable")
	} else {
		result.Backups = "ok"
	}

	if cfg.AccessPolicy == config.PolicyAuthorizer || cfg.AccessPolicy == config.PolicyAny {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail("authorizer_error", err, "Authorizer ping failed")
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	}

	return result
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
