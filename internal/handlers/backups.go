// backups.go
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
	"bufio"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/services"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/localnerve/shopdb/internal/utils"
)

// BackupHandler serves /maintenance/backups
type BackupHandler struct {
	Engine  *services.BackupEngine
	Archive *services.ArchiveTransfer
}

// ListBackups handles GET /maintenance/backups
// @Summary List snapshots
// @Description Every snapshot, highest version first, without protected files
// @Tags Backups
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups [get]
func (h *BackupHandler) ListBackups(c *fiber.Ctx) error {
	list, err := h.Engine.ListSnapshots(c.UserContext())
	if err != nil {
		return err
	}
	cfg := h.Engine.Config()
	return utils.DataResponse(c, fiber.StatusOK, list, fiber.Map{
		"config": fiber.Map{"prefix": cfg.BackupPrefix, "maxBackups": cfg.MaxBackups},
	})
}

// TriggerBackup handles POST /maintenance/backups/trigger
// @Summary Create a snapshot now
// @Tags Backups
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/trigger [post]
func (h *BackupHandler) TriggerBackup(c *fiber.Ctx) error {
	result, err := h.Engine.CreateSnapshot(c.UserContext())
	if err != nil {
		return err
	}
	return utils.MessageResponse(c, "Backup completed", fiber.Map{"details": result})
}

// DownloadBackup handles GET /maintenance/backups/:version/download
// @Summary Download a snapshot
// @Description Streams a zip of the snapshot's collection files, built on the fly
// @Tags Backups
// @Produce application/zip
// @Param version path string true "Version name"
// @Success 200 {file} file
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/{version}/download [get]
func (h *BackupHandler) DownloadBackup(c *fiber.Ctx) error {
	export, err := h.Archive.Export(c.Params("version"))
	if err != nil {
		return err
	}

	c.Attachment(export.FileName())
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if _, err := export.WriteTo(w); err != nil {
			log.Printf("Streaming %s failed: %v", export.FileName(), err)
		}
		if err := w.Flush(); err != nil {
			log.Printf("Streaming %s failed: %v", export.FileName(), err)
		}
	})
	return nil
}

// InspectBackupFile handles GET /maintenance/backups/:version/files/:file
// @Summary Inspect a snapshot file
// @Tags Backups
// @Produce json
// @Param version path string true "Version name"
// @Param file path string true "Collection file name"
// @Success 200 {object} services.SnapshotFile
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/{version}/files/{file} [get]
func (h *BackupHandler) InspectBackupFile(c *fiber.Ctx) error {
	file, err := h.Engine.InspectSnapshotFile(c.Params("version"), c.Params("file"))
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusOK, file.Records, fiber.Map{
		"versionName": file.VersionName,
		"fileName":    file.FileName,
		"meta":        meta(file.TotalLines, file.ShowingLast, file.Truncated),
	})
}

// RestoreBackup handles POST /maintenance/backups/:version/restore
// @Summary Restore a snapshot over the live store
// @Description Requires the admin key. The service restarts or reloads afterwards, per RESTORE_POLICY.
// @Tags Backups
// @Produce json
// @Param version path string true "Version name"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/{version}/restore [post]
func (h *BackupHandler) RestoreBackup(c *fiber.Ctx) error {
	version := c.Params("version")
	result, err := h.Engine.RestoreSnapshot(version)
	if err != nil {
		return err
	}
	return utils.MessageResponse(c, "System rolled back to "+version, fiber.Map{"details": result})
}

// RestoreFromZip handles POST /maintenance/backups/restore-from-zip
// @Summary Restore from an uploaded archive
// @Description Requires the admin key. Protected and unknown entries are skipped; unsafe entry names reject the archive.
// @Tags Backups
// @Accept multipart/form-data
// @Produce json
// @Param backupZip formData file true "Snapshot archive"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/restore-from-zip [post]
func (h *BackupHandler) RestoreFromZip(c *fiber.Ctx) error {
	header, err := c.FormFile("backupZip")
	if err != nil {
		return &types.CustomError{Code: fiber.StatusBadRequest, Message: "No file uploaded", Type: "validation"}
	}
	f, err := header.Open()
	if err != nil {
		return types.Maintenance("open upload", err)
	}
	defer f.Close()

	result, err := h.Archive.Import(f, header.Size)
	if err != nil {
		return err
	}
	return utils.MessageResponse(c, "External ZIP restored", fiber.Map{"details": result})
}

// DeleteBackup handles DELETE /maintenance/backups/:version
// @Summary Prune a snapshot
// @Description Requires the admin key
// @Tags Backups
// @Produce json
// @Param version path string true "Version name"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /maintenance/backups/{version} [delete]
func (h *BackupHandler) DeleteBackup(c *fiber.Ctx) error {
	version := c.Params("version")
	if err := h.Engine.PruneSnapshot(version); err != nil {
		return err
	}
	return utils.MessageResponse(c, "Version "+version+" purged", nil)
}

func meta(total, showing int, truncated bool) fiber.Map {
	return fiber.Map{"totalLines": total, "showingLast": showing, "truncated": truncated}
}
