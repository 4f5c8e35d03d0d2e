// auth.go
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
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/shopdb/internal/services"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/localnerve/shopdb/internal/utils"
)

// AuthHandler serves /auth
type AuthHandler struct {
	Service *services.AuthService
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func parseBody(c *fiber.Ctx, v interface{}) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fmt.Errorf("%w: body must be a JSON object", types.ErrValidation)
	}
	return nil
}

// Register handles POST /auth/register
// @Summary Register personnel
// @Description Requires the master setup key as setupKey
// @Tags Auth
// @Accept json
// @Produce json
// @Success 201 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var body credentialsBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	user, err := h.Service.Register(body.Username, body.Password)
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusCreated, fiber.Map{"username": user.Username}, nil)
}

// Login handles POST /auth/login
// @Summary Log in
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body credentialsBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	user, err := h.Service.Login(body.Username, body.Password)
	if err != nil {
		return err
	}
	return utils.DataResponse(c, fiber.StatusOK, nil, fiber.Map{
		"user": fiber.Map{"username": user.Username, "role": user.Role},
	})
}

// Update handles POST /auth/update
// @Summary Rename personnel or reset a password
// @Description Requires the admin key as key
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} utils.DataResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /auth/update [post]
func (h *AuthHandler) Update(c *fiber.Ctx) error {
	var body services.UpdateInput
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if _, err := h.Service.Update(body); err != nil {
		return err
	}
	return utils.MessageResponse(c, "Personnel record updated", nil)
}
