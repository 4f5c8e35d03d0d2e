// auth_service.go
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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/models"
	"github.com/localnerve/shopdb/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// DefaultRole is given to every registered user.
const DefaultRole = "admin"

// AuthService manages personnel records in the application collection.
// Key checks happen in front of it; it only deals with users.
type AuthService struct {
	registry *database.Registry
	cost     int
}

// NewAuthService returns a service storing users through registry.
func NewAuthService(registry *database.Registry) *AuthService {
	return &AuthService{registry: registry, cost: bcrypt.DefaultCost}
}

// UpdateInput renames a user and/or resets their password.
type UpdateInput struct {
	CurrentUsername string `json:"currentUsername"`
	NewUsername     string `json:"newUsername"`
	NewPassword     string `json:"newPassword"`
}

func (s *AuthService) users() (database.Store, error) {
	return s.registry.Collection(config.CollectionApplication)
}

// findUser returns the user record named username.
func (s *AuthService) findUser(store database.Store, username string) (models.User, error) {
	all, err := store.FindAll()
	if err != nil {
		return models.User{}, err
	}
	for _, rec := range all {
		if rec["type"] != models.RecordTypeUser || rec["username"] != username {
			continue
		}
		return models.UserFromRecord(rec)
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, types.ErrNotFound)
}

// Register creates a user with a bcrypt password hash.
func (s *AuthService) Register(username, password string) (models.UserView, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.UserView{}, fmt.Errorf("%w: username and password are required", types.ErrValidation)
	}
	store, err := s.users()
	if err != nil {
		return models.UserView{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.UserView{}, fmt.Errorf("failed to hash password: %w", err)
	}
	user := models.User{
		Type:         models.RecordTypeUser,
		Username:     username,
		PasswordHash: string(hash),
		Role:         DefaultRole,
		CreatedAt:    time.Now().UTC(),
	}
	rec, err := user.Record()
	if err != nil {
		return models.UserView{}, err
	}
	// the store enforces unique usernames
	created, err := store.Insert(rec)
	if err != nil {
		return models.UserView{}, err
	}
	user, err = models.UserFromRecord(created)
	if err != nil {
		return models.UserView{}, err
	}
	return user.View(), nil
}

// Login verifies a password. Unknown users and wrong passwords fail the
// same way.
func (s *AuthService) Login(username, password string) (models.UserView, error) {
	store, err := s.users()
	if err != nil {
		return models.UserView{}, err
	}
	user, err := s.findUser(store, username)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return models.UserView{}, fmt.Errorf("%w: invalid credentials", types.ErrUnauthorized)
		}
		return models.UserView{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.UserView{}, fmt.Errorf("%w: invalid credentials", types.ErrUnauthorized)
	}
	return user.View(), nil
}

// Update applies a rename and/or password reset to an existing user.
func (s *AuthService) Update(in UpdateInput) (models.UserView, error) {
	newUsername := strings.TrimSpace(in.NewUsername)
	if newUsername == "" && in.NewPassword == "" {
		return models.UserView{}, fmt.Errorf("%w: nothing to update", types.ErrValidation)
	}
	store, err := s.users()
	if err != nil {
		return models.UserView{}, err
	}
	user, err := s.findUser(store, in.CurrentUsername)
	if err != nil {
		return models.UserView{}, err
	}

	fields := database.Record{"updatedAt": time.Now().UTC()}
	if newUsername != "" {
		fields["username"] = newUsername
	}
	if in.NewPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cost)
		if err != nil {
			return models.UserView{}, fmt.Errorf("failed to hash password: %w", err)
		}
		fields["passwordHash"] = string(hash)
	}

	updated, err := store.UpdateByID(user.ID, fields)
	if err != nil {
		return models.UserView{}, err
	}
	user, err = models.UserFromRecord(updated)
	if err != nil {
		return models.UserView{}, err
	}
	return user.View(), nil
}
