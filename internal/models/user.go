// user.go
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

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/localnerve/shopdb/internal/database"
)

// RecordTypeUser tags personnel records in the application collection.
const RecordTypeUser = "user"

// User is a personnel record kept in the protected application collection.
type User struct {
	ID           string     `json:"_id,omitempty"`
	Type         string     `json:"type"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"passwordHash"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// UserView is what leaves the service; it never carries the hash.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// View strips credentials from u.
func (u User) View() UserView {
	return UserView{ID: u.ID, Username: u.Username, Role: u.Role}
}

// Record converts u to a storable document.
func (u User) Record() (database.Record, error) {
	return toRecord(u)
}

// UserFromRecord decodes a stored document.
func UserFromRecord(rec database.Record) (User, error) {
	var u User
	if err := fromRecord(rec, &u); err != nil {
		return User{}, fmt.Errorf("invalid user record: %w", err)
	}
	return u, nil
}

func toRecord(v interface{}) (database.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec database.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromRecord(rec database.Record, v interface{}) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
