package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateLoanRejectsPeriodChange(t *testing.T) {
	lc := GetLoanController(&Srv{})
	cases := []struct {
		name string
		body string
	}{
		{"start date", `{"startDate":"2025-04-01"}`},
		{"duration", `{"durationDays":14}`},
		{"mixed with allowed field", `{"activityName":"new survey","startDate":"2025-04-01"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := testCtx(t)
			c.Request = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			lc.UpdateLoan(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "loan period")
		})
	}
}

func TestCreateLoanRejectsNonPositiveQuantity(t *testing.T) {
	lc := GetLoanController(&Srv{})
	c, w := testCtx(t)
	body := `{
		"assignmentLetterNo": "SPT/001",
		"activityName": "field survey",
		"startDate": "2025-03-10",
		"durationDays": 5,
		"items": [{"deviceId": "6a1f0a7e-0000-0000-0000-000000000001", "quantity": -1}]
	}`
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	lc.CreateLoan(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
