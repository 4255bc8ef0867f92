package controllers

import (
	"net/http"
	"strconv"
	"time"

	"device_loan_service/app"
	"device_loan_service/db"
	"device_loan_service/models"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ *Srv }

func GetLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

type loanItemInput struct {
	DeviceID        *string `json:"deviceId"`
	ChildDeviceID   *string `json:"childDeviceId"`
	Quantity        int     `json:"quantity" binding:"omitempty,min=1"`
	ConditionBefore string  `json:"conditionBefore" binding:"omitempty,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
}

// refOf enforces the parent-xor-child shape at the edge.
func refOf(in loanItemInput) (models.DeviceRef, error) {
	switch {
	case in.DeviceID != nil && in.ChildDeviceID == nil:
		return models.ParentRef(*in.DeviceID), nil
	case in.DeviceID == nil && in.ChildDeviceID != nil:
		return models.ChildRef(*in.ChildDeviceID), nil
	}
	return models.DeviceRef{}, models.ErrAmbiguousDeviceRef
}

// POST /api/loans
func (lc *LoanController) CreateLoan(c *gin.Context) {
	var in struct {
		AssignmentLetterNo string          `json:"assignmentLetterNo" binding:"required"`
		ActivityName       string          `json:"activityName" binding:"required"`
		StartDate          string          `json:"startDate" binding:"required"`
		DurationDays       int             `json:"durationDays" binding:"required,min=1"`
		BorrowerID         string          `json:"borrowerId"`
		Items              []loanItemInput `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	start, err := parseDate(in.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "startDate must be YYYY-MM-DD"})
		return
	}

	uid := currentUserID(c)
	borrower := in.BorrowerID
	if borrower == "" {
		borrower = uid
	}
	if borrower != uid && !isAdmin(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "cannot create loans for other users"})
		return
	}

	input := db.CreateLoanInput{
		AssignmentLetterNo: in.AssignmentLetterNo,
		BorrowerID:         borrower,
		ActivityName:       in.ActivityName,
		StartDate:          start,
		DurationDays:       in.DurationDays,
		ActorID:            uid,
	}
	for _, item := range in.Items {
		ref, rerr := refOf(item)
		if rerr != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": rerr.Error()})
			return
		}
		input.Items = append(input.Items, db.CreateLoanItemInput{
			Ref:             ref,
			Quantity:        item.Quantity,
			ConditionBefore: models.DeviceCondition(item.ConditionBefore),
		})
	}

	loan, err := lc.Repo.CreateLoan(c.Request.Context(), input)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// GET /api/loans?status=&borrowerId=&page=&size=&sortBy=&sortOrder=
func (lc *LoanController) ListLoans(c *gin.Context) {
	q := db.ListLoansQuery{
		Status:     c.Query("status"),
		BorrowerID: c.Query("borrowerId"),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	// non-admins only see their own loans
	if !isAdmin(c) {
		q.BorrowerID = currentUserID(c)
	}

	res, err := lc.Repo.ListLoans(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "loans": res.Loans})
}

// GET /api/loans/:id
func (lc *LoanController) GetLoan(c *gin.Context) {
	loan, err := lc.Repo.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if loan.BorrowerID != currentUserID(c) && !isAdmin(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, loan)
}

// PATCH /api/loans/:id — limited fields, ACTIVE only. Start date and duration
// are immutable; cancel and re-create to change the period.
func (lc *LoanController) UpdateLoan(c *gin.Context) {
	var in struct {
		AssignmentLetterNo *string `json:"assignmentLetterNo"`
		ActivityName       *string `json:"activityName"`
		StartDate          *string `json:"startDate"`
		DurationDays       *int    `json:"durationDays"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	// the period is fixed at creation; reject rather than silently drop it
	if in.StartDate != nil || in.DurationDays != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "loan period cannot be changed, cancel and create a new loan"})
		return
	}

	existing, err := lc.Repo.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if existing.BorrowerID != currentUserID(c) && !isAdmin(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
		return
	}

	loan, err := lc.Repo.UpdateLoan(c.Request.Context(), c.Param("id"), db.UpdateLoanInput{
		AssignmentLetterNo: in.AssignmentLetterNo,
		ActivityName:       in.ActivityName,
	})
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/:id/return
func (lc *LoanController) ReturnLoan(c *gin.Context) {
	var in struct {
		Notes string `json:"notes"`
		Items []struct {
			ItemID         string `json:"itemId" binding:"required"`
			ConditionAfter string `json:"conditionAfter" binding:"omitempty,oneof=GOOD LIGHT_DAMAGE HEAVY_DAMAGE"`
		} `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	existing, err := lc.Repo.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if existing.BorrowerID != currentUserID(c) && !isAdmin(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
		return
	}

	input := db.ReturnLoanInput{
		ReturnedByID: currentUserID(c),
		Notes:        in.Notes,
	}
	for _, it := range in.Items {
		input.Items = append(input.Items, db.ReturnItemInput{
			ItemID:         it.ItemID,
			ConditionAfter: models.DeviceCondition(it.ConditionAfter),
		})
	}

	loan, err := lc.Repo.ReturnLoan(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/:id/cancel (admin)
func (lc *LoanController) CancelLoan(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}
	loan, err := lc.Repo.CancelLoan(c.Request.Context(), c.Param("id"), currentUserID(c), in.Reason)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// POST /api/loans/mark-overdue (admin) — the sweep also runs on a timer; this
// endpoint lets operators force a pass.
func (lc *LoanController) MarkOverdue(c *gin.Context) {
	n, err := lc.Repo.MarkOverdue(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, app.H{"affected": n})
}

// GET /api/loans/:id/document — the fully resolved payload handed to the
// external berita acara renderer. Formatting stays outside this service.
func (lc *LoanController) LoanDocument(c *gin.Context) {
	loan, err := lc.Repo.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if loan.BorrowerID != currentUserID(c) && !isAdmin(c) {
		c.JSON(http.StatusForbidden, app.H{"error": "forbidden"})
		return
	}

	items := make([]app.H, 0, len(loan.Items))
	for _, it := range loan.Items {
		row := app.H{
			"quantity":        it.Quantity,
			"conditionBefore": it.ConditionBefore,
			"conditionAfter":  it.ConditionAfter,
		}
		if it.Device != nil {
			row["code"] = it.Device.Code
			row["name"] = it.Device.Name
			row["brand"] = it.Device.Brand
		}
		if it.ChildDevice != nil {
			row["code"] = it.ChildDevice.Code
			row["name"] = it.ChildDevice.Name
		}
		items = append(items, row)
	}

	doc := app.H{
		"loanNumber":         loan.LoanNumber,
		"assignmentLetterNo": loan.AssignmentLetterNo,
		"activityName":       loan.ActivityName,
		"startDate":          loan.StartDate.Format("2006-01-02"),
		"endDate":            loan.EndDate.Format("2006-01-02"),
		"status":             loan.Status,
		"items":              items,
		"histories":          loan.Histories,
	}
	if loan.Borrower != nil {
		doc["borrower"] = app.H{
			"username":    loan.Borrower.Username,
			"displayName": loan.Borrower.DisplayName,
		}
	}
	if loan.ActualReturnDate != nil {
		doc["actualReturnDate"] = loan.ActualReturnDate.Format("2006-01-02")
		doc["returnNotes"] = loan.ReturnNotes
	}
	c.JSON(http.StatusOK, doc)
}
