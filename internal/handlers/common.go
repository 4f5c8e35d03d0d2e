// common.go
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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/localnerve/shopdb/internal/utils"
)

// ErrorHandler renders every error a handler returns. Maintenance and
// internal failures are logged in full and reach the client as a generic
// message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Message, fe.Code, "request")
	}

	var fields *types.FieldErrors
	if errors.As(err, &fields) {
		return utils.ValidationErrorResponse(c, fields.Errors)
	}

	var ce *types.CustomError
	if errors.As(err, &ce) {
		return utils.ErrorResponse(c, ce.Message, ce.Code, ce.Type)
	}

	status := types.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Method(), c.OriginalURL(), err)
	}
	return utils.ErrorResponse(c, types.PublicMessage(err), status, errorType(err, status))
}

func errorType(err error, status int) string {
	var me *types.MaintenanceError
	if errors.As(err, &me) {
		return "maintenance"
	}
	switch status {
	case http.StatusNotFound:
		return "notFound"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadRequest:
		return "validation"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// parseRecord decodes a JSON object body.
func parseRecord(c *fiber.Ctx) (database.Record, error) {
	var rec database.Record
	if err := json.Unmarshal(c.Body(), &rec); err != nil || rec == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", types.ErrValidation)
	}
	return rec, nil
}
