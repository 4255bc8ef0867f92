package db

import (
	"context"
	"fmt"
	"testing"

	"device_loan_service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDeviceDuplicateCode(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	seedDevice(t, r, "PC-001")
	err := r.CreateDevice(ctx, &models.Device{
		ID:   uuid.NewString(),
		Code: "PC-001",
		Name: "another unit",
	})
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestFindDeviceByIDOrCode(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	d := seedDevice(t, r, "PC-001")
	seedChild(t, r, d, "PC-001-KB")

	byID, err := r.FindDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "PC-001", byID.Code)
	assert.Len(t, byID.Children, 1)

	byCode, err := r.FindDeviceByCode(ctx, "PC-001")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byCode.ID)

	_, err = r.FindDeviceByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDevicePartial(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	d := seedDevice(t, r, "PC-001")
	updated, err := r.UpdateDevice(ctx, d.ID, map[string]interface{}{
		"name": "renamed",
		"room": "Lab 2",
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "Lab 2", updated.Room)
	assert.Equal(t, "PC-001", updated.Code) // untouched

	_, err = r.UpdateDevice(ctx, uuid.NewString(), map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeriveParentStatusOnChildMutations(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	parent := seedDevice(t, r, "CAM-001")
	c1 := seedChild(t, r, parent, "CAM-001-BODY")
	c2 := seedChild(t, r, parent, "CAM-001-LENS")

	// all children available -> parent available
	p, err := r.FindDeviceByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceAvailable, p.Status)

	// one child borrowed, one free -> still available
	_, err = r.UpdateChildDevice(ctx, c1.ID, map[string]interface{}{"status": models.DeviceBorrowed})
	require.NoError(t, err)
	p, err = r.FindDeviceByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceAvailable, p.Status)

	// every child busy -> parent borrowed
	_, err = r.UpdateChildDevice(ctx, c2.ID, map[string]interface{}{"status": models.DeviceBorrowed})
	require.NoError(t, err)
	p, err = r.FindDeviceByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceBorrowed, p.Status)

	// deleting the busy child frees nothing; deleting down to one free child does
	_, err = r.DeleteChildDevice(ctx, c2.ID)
	require.NoError(t, err)
	_, err = r.UpdateChildDevice(ctx, c1.ID, map[string]interface{}{"status": models.DeviceAvailable})
	require.NoError(t, err)
	p, err = r.FindDeviceByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceAvailable, p.Status)
}

func TestDeleteDeviceRemovesChildrenAndReportsPhotos(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	d := seedDevice(t, r, "CAM-001")
	_, err := r.UpdateDevice(ctx, d.ID, map[string]interface{}{"photo_path": "/data/photos/cam.jpg"})
	require.NoError(t, err)
	ch := seedChild(t, r, d, "CAM-001-LENS")
	_, err = r.UpdateChildDevice(ctx, ch.ID, map[string]interface{}{"photo_path": "/data/photos/lens.jpg"})
	require.NoError(t, err)

	photos, err := r.DeleteDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/data/photos/cam.jpg", "/data/photos/lens.jpg"}, photos)

	_, err = r.FindDeviceByID(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindChildDeviceByID(ctx, ch.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.DeleteDevice(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDevicesFilterSortPaginate(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := seedDevice(t, r, fmt.Sprintf("PC-%03d", i))
		if i%2 == 0 {
			require.NoError(t, r.SetDeviceStatus(ctx, d.ID, models.DeviceMaintenance))
		}
	}
	seedDevice(t, r, "CAM-001")

	res, err := r.ListDevices(ctx, ListDevicesQuery{Q: "pc-"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Total)

	res, err = r.ListDevices(ctx, ListDevicesQuery{Status: string(models.DeviceMaintenance)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	res, err = r.ListDevices(ctx, ListDevicesQuery{SortBy: "code", SortOrder: "asc", Page: 1, Size: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.Total)
	require.Len(t, res.Devices, 3)
	assert.Equal(t, "CAM-001", res.Devices[0].Code)

	res, err = r.ListDevices(ctx, ListDevicesQuery{SortBy: "code", SortOrder: "asc", Page: 2, Size: 3})
	require.NoError(t, err)
	require.Len(t, res.Devices, 3)
	assert.Equal(t, "PC-003", res.Devices[0].Code)
}

func TestRejectConditionChangeLeavesDeviceUntouched(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, r, "budi", models.RoleUser)
	admin := seedUser(t, r, "sari", models.RoleAdmin)
	d := seedDevice(t, r, "PC-001")

	loan, err := r.CreateLoan(ctx, loanInput(u, "SPT/001", "2025-01-10", 5, parentItem(d)))
	require.NoError(t, err)
	_, err = r.ReturnLoan(ctx, loan.ID, ReturnLoanInput{
		ReturnedByID: u.ID,
		Items:        []ReturnItemInput{{ItemID: loan.Items[0].ID, ConditionAfter: models.ConditionHeavyDamage}},
	})
	require.NoError(t, err)

	reqs, _, err := r.ListConditionRequests(ctx, string(models.RequestPending), 1, 20)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req, err := r.RejectConditionChange(ctx, reqs[0].ID, admin.ID, "damage predates the loan")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, req.Status)
	assert.Equal(t, "damage predates the loan", req.RejectionReason)
	require.NotNil(t, req.ReviewerID)
	assert.Equal(t, admin.ID, *req.ReviewerID)

	dev, err := r.FindDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConditionGood, dev.Condition)

	_, err = r.RejectConditionChange(ctx, reqs[0].ID, admin.ID, "again")
	assert.ErrorIs(t, err, ErrRequestNotPending)
}
