// validators.go
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
	"math"
	"strings"

	"github.com/localnerve/shopdb/internal/database"
)

// Validator reports every rule rec breaks. It may normalize rec in place.
type Validator func(rec database.Record) []string

// DefaultValidators maps resources to their field checks. Resources without
// an entry accept any document.
var DefaultValidators = map[string]Validator{
	"fabricators": ValidateFabricator,
	"drawings":    ValidateDrawing,
	"pallets":     ValidatePallet,
}

var (
	shifts          = []string{"day", "night"}
	drawingStatuses = []string{"new", "looking", "complete", "delivered"}
)

func isNonEmptyString(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func isNumber(v interface{}) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n)
	case int, int64:
		return true
	}
	return false
}

func oneOf(v interface{}, allowed []string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// ValidateFabricator checks a work cell.
func ValidateFabricator(rec database.Record) []string {
	var errs []string
	if !isNonEmptyString(rec["name"]) {
		errs = append(errs, "name is required")
	}
	if !isNonEmptyString(rec["table"]) {
		errs = append(errs, "table is required")
	}
	if !isNumber(rec["headCount"]) {
		errs = append(errs, "headCount must be number")
	}
	if !oneOf(rec["shift"], shifts) {
		errs = append(errs, "shift must be day or night")
	}
	if !isNonEmptyString(rec["status"]) {
		errs = append(errs, "status is required")
	}
	return errs
}

// ValidateDrawing checks a drawing and each of its palates.
func ValidateDrawing(rec database.Record) []string {
	var errs []string
	if !isNonEmptyString(rec["drawingNumber"]) {
		errs = append(errs, "drawingNumber is required")
	}
	if !isNonEmptyString(rec["deliverTo"]) {
		errs = append(errs, "deliverTo (fabricator) is required")
	}
	if !oneOf(rec["status"], drawingStatuses) {
		errs = append(errs, "invalid status")
	}

	palates, ok := rec["palates"].([]interface{})
	if !ok {
		return append(errs, "palates must be an array")
	}
	for i, item := range palates {
		p, _ := item.(map[string]interface{})
		if !isNonEmptyString(p["mark"]) {
			errs = append(errs, fmt.Sprintf("palates[%d].mark required", i))
		}
		if !isNonEmptyString(p["profile"]) {
			errs = append(errs, fmt.Sprintf("palates[%d].profile required", i))
		}
		for _, field := range []string{"length", "width", "thickness", "quantity"} {
			if !isNumber(p[field]) {
				errs = append(errs, fmt.Sprintf("palates[%d].%s must be number", i, field))
			}
		}
	}
	return errs
}

// ValidatePallet checks a physical unit. Pallets always sit on the floor,
// so z is forced to 0.
func ValidatePallet(rec database.Record) []string {
	var errs []string
	if !isNumber(rec["x"]) {
		errs = append(errs, "x must be number")
	}
	if !isNumber(rec["y"]) {
		errs = append(errs, "y must be number")
	}
	rec["z"] = float64(0)

	palates, ok := rec["palates"].([]interface{})
	if !ok {
		return append(errs, "palates must be array")
	}
	for i, item := range palates {
		p, _ := item.(map[string]interface{})
		if !isNonEmptyString(p["mark"]) {
			errs = append(errs, fmt.Sprintf("palates[%d].mark required", i))
		}
	}
	return errs
}
