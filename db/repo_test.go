package db

import (
	"context"
	"testing"

	"device_loan_service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserDuplicateUsername(t *testing.T) {
	r := setupTestRepo(t)
	seedUser(t, r, "budi", models.RoleUser)

	err := r.CreateUser(context.Background(), &models.User{
		ID:           "11111111-1111-1111-1111-111111111111",
		Username:     "budi",
		DisplayName:  "Budi Again",
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestListUsersSearchAndPaginate(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	seedUser(t, r, "budi", models.RoleUser)
	seedUser(t, r, "budiman", models.RoleOfficer)
	seedUser(t, r, "sari", models.RoleAdmin)

	res, err := r.ListUsers(ctx, "budi", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	res, err = r.ListUsers(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Users, 2)
}

func TestCountAdminsAndDelete(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	n, err := r.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	seedUser(t, r, "sari", models.RoleAdmin)
	u := seedUser(t, r, "budi", models.RoleUser)

	n, err = r.CountAdmins(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, r.DeleteUserByID(ctx, u.ID))
	_, err = r.FindUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.DeleteUserByID(ctx, u.ID), ErrNotFound)
}
