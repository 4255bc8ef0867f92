package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"device_loan_service/db"
	"device_loan_service/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestWriteRepoErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", db.ErrNotFound, http.StatusNotFound},
		{"code taken", db.ErrCodeTaken, http.StatusConflict},
		{"username taken", db.ErrUsernameTaken, http.StatusConflict},
		{"letter taken", db.ErrLetterTaken, http.StatusConflict},
		{"invalid status", db.ErrInvalidStatus, http.StatusBadRequest},
		{"item set mismatch", db.ErrItemSetMismatch, http.StatusBadRequest},
		{"duplicate item ref", db.ErrDuplicateItemRef, http.StatusBadRequest},
		{"not loanable", db.ErrDeviceNotLoanable, http.StatusBadRequest},
		{"request not pending", db.ErrRequestNotPending, http.StatusBadRequest},
		{"no items", db.ErrNoItems, http.StatusBadRequest},
		{"bad quantity", db.ErrBadQuantity, http.StatusBadRequest},
		{"ambiguous ref", models.ErrAmbiguousDeviceRef, http.StatusBadRequest},
		{"wrapped sentinel", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := testCtx(t)
			writeRepoError(c, tc.err)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestWriteRepoErrorUnavailablePayload(t *testing.T) {
	c, w := testCtx(t)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	writeRepoError(c, &db.UnavailableError{DeviceCode: "PC-001", Start: start, End: end})

	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "device unavailable", body["error"])
	assert.Equal(t, "PC-001", body["deviceCode"])
	assert.Equal(t, "2025-03-10", body["start"])
	assert.Equal(t, "2025-03-20", body["end"])
}

func TestWriteRepoErrorHidesInternals(t *testing.T) {
	c, w := testCtx(t)
	writeRepoError(c, errors.New("pq: relation dl_loans does not exist"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["error"])
}

func TestWriteBindErrorValidator(t *testing.T) {
	type payload struct {
		AssignmentLetterNo string `json:"assignmentLetterNo" binding:"required"`
		DurationDays       int    `json:"durationDays" binding:"required,min=1"`
	}

	c, w := testCtx(t)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"durationDays": 0}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var p payload
	err := c.ShouldBindJSON(&p)
	require.Error(t, err)
	writeBindError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error  string `json:"error"`
		Fields []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Len(t, body.Fields, 2)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("10-03-2025")
	assert.Error(t, err)
}
