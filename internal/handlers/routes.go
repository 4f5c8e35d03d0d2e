// routes.go
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

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/middleware"
	"github.com/localnerve/shopdb/internal/services"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Config    *config.Config
	Registry  *database.Registry
	Policy    services.AccessPolicy
	Backups   *services.BackupEngine
	Archive   *services.ArchiveTransfer
	Database  *services.DatabaseService
	Auth      *services.AuthService
	Resources *services.ResourceService
	Activity  *services.ActivityLog
}

// NewDependencies builds every service over an open registry. The caller
// owns registry and must Close the returned activity log.
func NewDependencies(cfg *config.Config, registry *database.Registry, restarter services.Restarter) (*Dependencies, error) {
	policy, err := services.NewAccessPolicy(cfg)
	if err != nil {
		return nil, err
	}
	backups := services.NewBackupEngine(cfg, registry, restarter)
	return &Dependencies{
		Config:    cfg,
		Registry:  registry,
		Policy:    policy,
		Backups:   backups,
		Archive:   services.NewArchiveTransfer(backups),
		Database:  services.NewDatabaseService(cfg, registry),
		Auth:      services.NewAuthService(registry),
		Resources: services.NewResourceService(registry, config.Resources, services.DefaultValidators),
		Activity:  services.NewActivityLog(registry, cfg.LogRetention),
	}, nil
}

// Routes mounts every service route on router.
func Routes(router fiber.Router, d *Dependencies) {
	admin := middleware.RequireAdmin(d.Policy)
	setup := middleware.RequireSetup(d.Policy)

	router.Use(middleware.ActivityLogger(d.Activity))

	health := &HealthHandler{Config: d.Config, Registry: d.Registry}
	router.Get("/health", health.Health)

	authHandler := &AuthHandler{Service: d.Auth}
	auth := router.Group("/auth")
	auth.Post("/register", setup, authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/update", admin, authHandler.Update)

	backupHandler := &BackupHandler{Engine: d.Backups, Archive: d.Archive}
	backups := router.Group("/maintenance/backups")
	backups.Get("/", backupHandler.ListBackups)
	backups.Post("/trigger", backupHandler.TriggerBackup)
	backups.Post("/restore-from-zip", admin, backupHandler.RestoreFromZip)
	backups.Get("/:version/download", backupHandler.DownloadBackup)
	backups.Get("/:version/files/:file", backupHandler.InspectBackupFile)
	backups.Post("/:version/restore", admin, backupHandler.RestoreBackup)
	backups.Delete("/:version", admin, backupHandler.DeleteBackup)

	databaseHandler := &DatabaseHandler{Service: d.Database, Engine: d.Backups}
	db := router.Group("/maintenance/database")
	db.Get("/", databaseHandler.ListFiles)
	db.Post("/factory-reset", admin, databaseHandler.FactoryReset)
	db.Get("/:file", databaseHandler.InspectFile)

	logsHandler := &LogsHandler{Activity: d.Activity}
	router.Get("/logs", logsHandler.RecentLogs)

	resourceHandler := &ResourceHandler{Service: d.Resources}
	resourceHandler.Mount(router)
}
