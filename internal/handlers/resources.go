// resources.go
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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/services"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/localnerve/shopdb/internal/utils"
)

// ResourceHandler serves the business collections
type ResourceHandler struct {
	Service *services.ResourceService
}

// Mount registers the five CRUD routes for every served resource.
func (h *ResourceHandler) Mount(router fiber.Router) {
	for _, resource := range h.Service.Resources() {
		group := router.Group("/" + resource)
		group.Post("/", h.create(resource))
		group.Get("/", h.list(resource))
		group.Get("/:id", h.get(resource))
		group.Put("/:id", h.update(resource))
		group.Delete("/:id", h.remove(resource))
	}
}

// create handles POST /{resource}
// @Summary Create records
// @Description Insert one record, or a batch when the body is an array. Every record is validated before any is stored.
// @Tags Resources
// @Accept json
// @Produce json
// @Param resource path string true "fabricators, pallets, drawings, jobs or cart"
// @Param body body object true "Record or array of records"
// @Success 201 {object} utils.DataResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /{resource} [post]
func (h *ResourceHandler) create(resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var recs types.FlexList[database.Record]
		if err := json.Unmarshal(c.Body(), &recs); err != nil {
			return fmt.Errorf("%w: body must be a JSON object or array", types.ErrValidation)
		}

		created, err := h.Service.Create(resource, recs.Slice())
		if err != nil {
			return err
		}

		if bytes.HasPrefix(bytes.TrimSpace(c.Body()), []byte("[")) {
			return utils.DataResponse(c, fiber.StatusCreated, created, nil)
		}
		return utils.DataResponse(c, fiber.StatusCreated, created[0], nil)
	}
}

// list handles GET /{resource}
// @Summary List records
// @Tags Resources
// @Produce json
// @Param resource path string true "Resource name"
// @Success 200 {object} utils.DataResponseStruct
// @Router /{resource} [get]
func (h *ResourceHandler) list(resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		recs, err := h.Service.List(resource)
		if err != nil {
			return err
		}
		return utils.DataResponse(c, fiber.StatusOK, recs, nil)
	}
}

// get handles GET /{resource}/{id}
// @Summary Get one record
// @Tags Resources
// @Produce json
// @Param resource path string true "Resource name"
// @Param id path string true "Record id"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /{resource}/{id} [get]
func (h *ResourceHandler) get(resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := h.Service.Get(resource, c.Params("id"))
		if err != nil {
			return err
		}
		return utils.DataResponse(c, fiber.StatusOK, rec, nil)
	}
}

// update handles PUT /{resource}/{id}
// @Summary Update a record
// @Description Merge the submitted fields into an existing record
// @Tags Resources
// @Accept json
// @Produce json
// @Param resource path string true "Resource name"
// @Param id path string true "Record id"
// @Param body body object true "Fields to merge"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /{resource}/{id} [put]
func (h *ResourceHandler) update(resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fields, err := parseRecord(c)
		if err != nil {
			return err
		}
		rec, err := h.Service.Update(resource, c.Params("id"), fields)
		if err != nil {
			return err
		}
		return utils.DataResponse(c, fiber.StatusOK, rec, nil)
	}
}

// remove handles DELETE /{resource}/{id}
// @Summary Delete a record
// @Tags Resources
// @Produce json
// @Param resource path string true "Resource name"
// @Param id path string true "Record id"
// @Success 200 {object} utils.DataResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /{resource}/{id} [delete]
func (h *ResourceHandler) remove(resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := h.Service.Delete(resource, c.Params("id")); err != nil {
			return err
		}
		return utils.MessageResponse(c, "deleted", nil)
	}
}
