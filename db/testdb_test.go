package db

import (
	"context"
	"testing"
	"time"

	"device_loan_service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo opens an in-memory SQLite database and runs the same Migrate
// the Postgres path uses. SQLite serializes writers, so the FOR UPDATE /
// advisory-lock paths are intentionally skipped here.
func setupTestRepo(t *testing.T) *Repo {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	return NewRepo(gdb)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	require.NoError(t, err)
	return d
}

func seedUser(t *testing.T, r *Repo, username string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  username,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func seedDevice(t *testing.T, r *Repo, code string) *models.Device {
	t.Helper()
	d := &models.Device{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      "device " + code,
		Condition: models.ConditionGood,
		Status:    models.DeviceAvailable,
	}
	require.NoError(t, r.CreateDevice(context.Background(), d))
	return d
}

func seedChild(t *testing.T, r *Repo, parent *models.Device, code string) *models.ChildDevice {
	t.Helper()
	ch := &models.ChildDevice{
		ID:        uuid.NewString(),
		DeviceID:  parent.ID,
		Code:      code,
		Name:      "child " + code,
		Condition: models.ConditionGood,
		Status:    models.DeviceAvailable,
	}
	require.NoError(t, r.CreateChildDevice(context.Background(), ch))
	return ch
}

func loanInput(borrower *models.User, letter, start string, days int, items ...CreateLoanItemInput) CreateLoanInput {
	st, _ := time.ParseInLocation("2006-01-02", start, time.UTC)
	return CreateLoanInput{
		AssignmentLetterNo: letter,
		BorrowerID:         borrower.ID,
		ActivityName:       "field survey",
		StartDate:          st,
		DurationDays:       days,
		Items:              items,
		ActorID:            borrower.ID,
	}
}

func parentItem(d *models.Device) CreateLoanItemInput {
	return CreateLoanItemInput{Ref: models.ParentRef(d.ID), Quantity: 1, ConditionBefore: models.ConditionGood}
}

func childItem(ch *models.ChildDevice) CreateLoanItemInput {
	return CreateLoanItemInput{Ref: models.ChildRef(ch.ID), Quantity: 1, ConditionBefore: models.ConditionGood}
}
