package services

import (
	"testing"

	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) (*AuthService, *testEnv) {
	t.Helper()
	env := newTestEnv(t, testConfig(t, config.EngineNDJSON))
	s := NewAuthService(env.registry)
	s.cost = bcrypt.MinCost
	return s, env
}

func TestRegisterAndLogin(t *testing.T) {
	s, env := newTestAuthService(t)

	view, err := s.Register("  kim ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "kim", view.Username)
	assert.Equal(t, DefaultRole, view.Role)
	assert.NotEmpty(t, view.ID)

	users := env.all(t, config.CollectionApplication)
	require.Len(t, users, 1)
	assert.NotEqual(t, "s3cret", users[0]["passwordHash"])

	got, err := s.Login("kim", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestAuthService(t)

	_, err := s.Register("", "pw")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = s.Register("kim", "")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	s, _ := newTestAuthService(t)

	_, err := s.Register("kim", "one")
	require.NoError(t, err)
	_, err = s.Register("kim", "two")
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s, _ := newTestAuthService(t)
	_, err := s.Register("kim", "s3cret")
	require.NoError(t, err)

	_, errWrong := s.Login("kim", "nope")
	_, errUnknown := s.Login("lee", "s3cret")
	assert.ErrorIs(t, errWrong, types.ErrUnauthorized)
	assert.ErrorIs(t, errUnknown, types.ErrUnauthorized)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestUpdateRenameAndPassword(t *testing.T) {
	s, _ := newTestAuthService(t)
	_, err := s.Register("kim", "old")
	require.NoError(t, err)

	view, err := s.Update(UpdateInput{CurrentUsername: "kim", NewUsername: "kimberly", NewPassword: "new"})
	require.NoError(t, err)
	assert.Equal(t, "kimberly", view.Username)

	_, err = s.Login("kim", "old")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = s.Login("kimberly", "old")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = s.Login("kimberly", "new")
	assert.NoError(t, err)
}

func TestUpdateErrors(t *testing.T) {
	s, _ := newTestAuthService(t)
	_, err := s.Register("kim", "pw")
	require.NoError(t, err)
	_, err = s.Register("lee", "pw")
	require.NoError(t, err)

	_, err = s.Update(UpdateInput{CurrentUsername: "kim"})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = s.Update(UpdateInput{CurrentUsername: "nobody", NewPassword: "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.Update(UpdateInput{CurrentUsername: "kim", NewUsername: "lee"})
	assert.ErrorIs(t, err, types.ErrConflict)
}
