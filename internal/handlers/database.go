// database.go
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
	"github.com/localnerve/shopdb/internal/services"
	"github.com/localnerve/shopdb/internal/utils"
)

// DatabaseHandler serves /maintenance/database
type DatabaseHandler struct {
	Service *services.DatabaseService
	Engine  *services.BackupEngine
}

// ListFiles handles GET /maintenance/database
// @Summary List live collection files
// @Tags Database
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Router /maintenance/database [get]
func (h *DatabaseHandler) ListFiles(c *fiber.Ctx) error {
	files, err := h.Service.ListFiles()
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusOK, files, nil)
}

// InspectFile handles GET /maintenance/database/:file
// @Summary Inspect a live collection file
// @Description Returns the newest records of the file with a truncated flag
// @Tags Database
// @Produce json
// @Param file path string true "Collection file name"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /maintenance/database/{file} [get]
func (h *DatabaseHandler) InspectFile(c *fiber.Ctx) error {
	contents, err := h.Service.InspectFile(c.Params("file"))
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusOK, contents.Records, fiber.Map{
		"fileName": contents.FileName,
		"meta":     meta(contents.TotalLines, contents.ShowingLast, contents.Truncated),
	})
}

// FactoryReset handles POST /maintenance/database/factory-reset
// @Summary Empty every non-protected collection
// @Description Requires the admin key
// @Tags Database
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /maintenance/database/factory-reset [post]
func (h *DatabaseHandler) FactoryReset(c *fiber.Ctx) error {
	cleared, err := h.Engine.FactoryReset()
	if err != nil {
		return err
	}
	return utils.MessageResponse(c, "Factory reset complete", fiber.Map{"cleared": cleared})
}
