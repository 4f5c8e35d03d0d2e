// logs.go
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

// RecentLogLimit caps GET /logs.
const RecentLogLimit = 100

// LogsHandler serves the activity log
type LogsHandler struct {
	Activity *services.ActivityLog
}

// RecentLogs handles GET /logs
// @Summary Recent activity
// @Description The newest mutating requests, newest first
// @Tags Logs
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Router /logs [get]
func (h *LogsHandler) RecentLogs(c *fiber.Ctx) error {
	entries, err := h.Activity.Recent(RecentLogLimit)
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusOK, entries, nil)
}
